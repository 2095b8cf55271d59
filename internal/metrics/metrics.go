// Package metrics exposes the pass counters. The tiler is a batch
// tool, so these mostly matter on long runs over a whole grid, where
// watching merges and emitted tiles tick up beats staring at a silent
// process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RegionsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiler_regions_read_total",
		Help: "Survey regions streamed from the store",
	})
	GroupMerges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiler_group_merges_total",
		Help: "Visibility group merges during clustering",
	})
	GroupsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiler_groups_completed_total",
		Help: "Visibility groups completed",
	})
	TilesEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tiler_tiles_emitted_total",
		Help: "Resolved tiles emitted by the pyramid, by level",
	}, []string{"level"})
	WaterFills = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiler_water_fills_total",
		Help: "Unsurveyed cells resolved to water by gap fill",
	})
	ReconcileConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiler_reconcile_conflicts_total",
		Help: "Contested prior group numbers settled during reconciliation",
	})
	AssetsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tiler_assets_generated_total",
		Help: "Assets produced by the generator",
	})
	PassFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tiler_pass_failures_total",
		Help: "Failed passes by error code",
	}, []string{"code"})
)

func init() {
	prometheus.MustRegister(RegionsRead)
	prometheus.MustRegister(GroupMerges)
	prometheus.MustRegister(GroupsCompleted)
	prometheus.MustRegister(TilesEmitted)
	prometheus.MustRegister(WaterFills)
	prometheus.MustRegister(ReconcileConflicts)
	prometheus.MustRegister(AssetsGenerated)
	prometheus.MustRegister(PassFailures)
}

// Handler serves the registered metrics; mounted by the tiler when
// metrics_addr is configured.
func Handler() http.Handler { return promhttp.Handler() }
