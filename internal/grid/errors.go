package grid

import "fmt"

// OutOfOrderError reports a region record that violates the
// (grid, x, y) ascending sort contract of the survey stream. The
// consumer that detects it refuses the record rather than risk
// mis-clustering; accumulated state is not corrupted.
type OutOfOrderError struct {
	Got  Key
	Prev Key
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("region %v out of order: previous record was %v", e.Got, e.Prev)
}
