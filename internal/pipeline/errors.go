package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"terraintiles/internal/grid"
	"terraintiles/internal/pyramid"
)

// Error codes for persisted and reported pass failures.
const (
	// CodeOutOfOrder: the survey stream violated (grid, x, y) order.
	// Recoverable by rejecting the offending batch and re-running.
	CodeOutOfOrder = "E_OUT_OF_ORDER"
	// CodeAlignment: the pyramid lost its column alignment invariant.
	// A bug, never an input problem; the pass aborts.
	CodeAlignment = "E_ALIGNMENT"
	// CodeIncompleteUpload: Land tiles were staged without asset
	// references, so the index swap was withheld.
	CodeIncompleteUpload = "E_INCOMPLETE_UPLOAD"
	CodeStore            = "E_STORE"
	CodeInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	CodeOutOfOrder:       {},
	CodeAlignment:        {},
	CodeIncompleteUpload: {},
	CodeStore:            {},
	CodeInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// IncompleteUploadError reports the staged Land tiles that ended the
// pass without an asset reference. The commit was withheld; the
// previously committed index is untouched.
type IncompleteUploadError struct {
	Grid    string
	Missing []grid.TileKey
}

func (e *IncompleteUploadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline: %d tiles on %s missing assets, commit withheld", len(e.Missing), e.Grid)
	for i, k := range e.Missing {
		if i == 5 {
			b.WriteString(" ...")
			break
		}
		fmt.Fprintf(&b, " (%d, %d) lod %d;", k.X, k.Y, k.Level)
	}
	return b.String()
}

// ErrorCode maps a pass failure to its reporting code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var ooo *grid.OutOfOrderError
	if errors.As(err, &ooo) {
		return CodeOutOfOrder
	}
	var align *pyramid.AlignmentError
	if errors.As(err, &align) {
		return CodeAlignment
	}
	var inc *IncompleteUploadError
	if errors.As(err, &inc) {
		return CodeIncompleteUpload
	}
	if errors.Is(err, ErrStore) {
		return CodeStore
	}
	return CodeInternal
}

// ErrStore marks store-layer failures so the reporting code survives
// wrapping.
var ErrStore = errors.New("store failure")
