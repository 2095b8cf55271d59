package pyramid

import "fmt"

// AlignmentError reports that the per-level state machines lost
// synchronization: a cell was touched outside the two buffered columns,
// or a scan ran at a coordinate that is not a multiple of the level's
// cell size. This is a bug in the builder, not bad input, so it is
// fatal for the pass.
type AlignmentError struct {
	Level int
	X, Y  int
	Cause string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("alignment invariant violated at lod %d (%d, %d): %s",
		e.Level, e.X, e.Y, e.Cause)
}
