// Package reconcile maps newly computed visibility group numbers onto
// the numbers persisted by the previous pass.
//
// Every pass renumbers its groups from scratch, but most groups are the
// same set of regions they were last time. Keeping the old number for
// an unchanged group means its derived assets keep their names and
// nothing is regenerated or re-uploaded. Each new group takes the old
// number held by the most of its members; only a merge or split of
// regions forces a reassignment, and every tie breaks deterministically
// so a re-run over unchanged input reproduces the same mapping.
package reconcile

import (
	"log"
	"sort"

	"terraintiles/internal/grid"
	"terraintiles/internal/vizgroup"
)

// Prior is the previous pass's region -> group number mapping, read
// from the committed tile index.
type Prior map[grid.Key]int

// Assignment is the outcome for one new group.
type Assignment struct {
	GroupID int  // new group number
	Mapped  int  // number to persist under
	Fresh   bool // true if Mapped was newly allocated
	Votes   int  // members that carried Mapped from the prior pass
	// Unique marks a single-region group. Singleton tiles never share
	// a group-partitioned key with multi-region aggregates.
	Unique bool
}

// Result of one reconciliation.
type Result struct {
	// ByGroup is keyed by new group number. Total: every new group has
	// an entry.
	ByGroup map[int]Assignment
	// Conflicts counts contested prior numbers that had to be settled.
	Conflicts int
}

// Mapped returns the persisted number for a new group.
func (r Result) Mapped(groupID int) int {
	return r.ByGroup[groupID].Mapped
}

// Reconcile computes the new -> old correspondence. Contested prior
// numbers go to the group holding more member votes; a vote tie keeps
// the number with the lower new group id. Losers and groups with no
// prior history get fresh numbers past everything seen so far. The
// logger (optional) records settled conflicts; conflicts are resolved
// here, never surfaced as failures.
func Reconcile(groups []vizgroup.Group, prior Prior, logger *log.Logger) Result {
	res := Result{ByGroup: make(map[int]Assignment, len(groups))}

	maxSeen := 0
	for _, id := range prior {
		if id > maxSeen {
			maxSeen = id
		}
	}

	// Majority vote per group, processed in ascending new id so the
	// outcome never depends on map order.
	ordered := make([]vizgroup.Group, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	type claim struct {
		groupID int
		votes   int
	}
	winners := make(map[int]claim) // prior id -> current best claim

	for _, g := range ordered {
		votes := make(map[int]int)
		for _, r := range g.Regions {
			// 0 is "no group", not a prior number; a member that was
			// water last pass has no vote to cast.
			if old, ok := prior[r.Key()]; ok && old != 0 {
				votes[old]++
			}
		}
		best, bestVotes := 0, 0
		for old, n := range votes {
			if n > bestVotes || (n == bestVotes && best != 0 && old < best) {
				best, bestVotes = old, n
			}
		}
		a := Assignment{
			GroupID: g.ID,
			Unique:  len(g.Regions) == 1,
		}
		if best != 0 {
			a.Mapped = best
			a.Votes = bestVotes
			if w, taken := winners[best]; taken {
				// Two new groups want the same old number. More votes
				// wins; ties keep it with the earlier group.
				res.Conflicts++
				if bestVotes > w.votes {
					loser := res.ByGroup[w.groupID]
					loser.Mapped = 0
					res.ByGroup[w.groupID] = loser
					winners[best] = claim{groupID: g.ID, votes: bestVotes}
					if logger != nil {
						logger.Printf("group %d takes number %d from group %d (%d vs %d votes)",
							g.ID, best, w.groupID, bestVotes, w.votes)
					}
				} else {
					a.Mapped = 0
					if logger != nil {
						logger.Printf("group %d loses number %d to group %d (%d vs %d votes)",
							g.ID, best, w.groupID, bestVotes, w.votes)
					}
				}
			} else {
				winners[best] = claim{groupID: g.ID, votes: bestVotes}
			}
		}
		res.ByGroup[g.ID] = a
	}

	// Fresh numbers for groups left without one, in ascending new id.
	for _, g := range ordered {
		a := res.ByGroup[g.ID]
		if a.Mapped == 0 {
			maxSeen++
			a.Mapped = maxSeen
			a.Fresh = true
			a.Votes = 0
			res.ByGroup[g.ID] = a
		}
	}
	return res
}
