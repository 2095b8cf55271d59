package pyramid

import "terraintiles/internal/grid"

// levelState names the phases one level moves through while its two
// child columns fill in.
type levelState uint8

const (
	// stateEmpty: window just shifted, no child outcome recorded yet.
	stateEmpty levelState = iota
	// stateAccumulating: some child outcomes recorded, neither column closed.
	stateAccumulating
	// stateMisaligned: the left child column closed. Blocks cannot resolve
	// until the right column closes; by construction this level only lines
	// up with the one below on every other column.
	stateMisaligned
	// stateAlignedReady: both columns closed, eligible to scan.
	stateAlignedReady
)

func (s levelState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateAccumulating:
		return "accumulating"
	case stateMisaligned:
		return "misaligned"
	default:
		return "aligned-ready"
	}
}

// level assembles 2x2 blocks of child tiles into tiles of twice the
// cell size. It buffers exactly two child columns over the group's
// vertical extent; everything to the left has been resolved and
// forgotten.
//
// Coordinates here are in base cells. A level's cell size is 2^lod and
// its working X must be a multiple of that whenever it scans.
type level struct {
	lod       int
	childSize int // width of one child column, cells
	cellSize  int // width of one tile at this level, cells

	baseY int // bottom of the buffered rows, aligned to cellSize
	topY  int
	rows  int // child rows per column

	curX      int // x of the left buffered child column
	finishedX int // every tile column left of this has been resolved
	state     levelState

	cols [2][]grid.Classification

	parent *level // nil at the top level
	child  *level // nil at lod 1 (children are the base regions)
	b      *Builder
}

func newLevel(b *Builder, lod, startX, minCY, maxCY int) *level {
	cell := 1 << lod
	child := cell >> 1
	baseY := floorAlign(minCY, cell)
	topY := ceilAlign(maxCY, cell)
	rows := (topY - baseY) / child
	l := &level{
		lod:       lod,
		childSize: child,
		cellSize:  cell,
		baseY:     baseY,
		topY:      topY,
		rows:      rows,
		curX:      startX,
		finishedX: startX,
		b:         b,
	}
	l.cols[0] = make([]grid.Classification, rows)
	l.cols[1] = make([]grid.Classification, rows)
	return l
}

// mark records a resolved child outcome into the two-column buffer.
func (l *level) mark(cx, cy int, c grid.Classification) error {
	var col int
	switch cx {
	case l.curX:
		col = 0
	case l.curX + l.childSize:
		col = 1
	default:
		return &AlignmentError{Level: l.lod, X: cx, Y: cy,
			Cause: "mark outside the two buffered columns"}
	}
	if cy < l.baseY || cy >= l.topY || (cy-l.baseY)%l.childSize != 0 {
		return &AlignmentError{Level: l.lod, X: cx, Y: cy,
			Cause: "mark outside the buffered rows"}
	}
	cell := &l.cols[col][(cy-l.baseY)/l.childSize]
	if *cell != grid.Land {
		*cell = c
	}
	if l.state == stateEmpty {
		l.state = stateAccumulating
	}
	return nil
}

// childColumnFinished is called when the child column at cx can receive
// no further outcomes. Closing the left column leaves the level
// misaligned; closing the right one makes it eligible to scan.
func (l *level) childColumnFinished(cx int) error {
	switch cx {
	case l.curX:
		l.state = stateMisaligned
		return l.check()
	case l.curX + l.childSize:
		l.state = stateAlignedReady
		if err := l.scan(); err != nil {
			return err
		}
		return l.check()
	default:
		return &AlignmentError{Level: l.lod, X: cx, Y: l.baseY,
			Cause: "column finished outside the two buffered columns"}
	}
}

// scan resolves every 2x2 block of the buffered window, bottom to top.
// Cells never observed resolve to water: undetermined terrain is
// water-by-omission, never land. Land tiles are emitted; water tiles
// are only recorded for the level above. Afterwards the window shifts
// one cell size to the right.
func (l *level) scan() error {
	if l.state != stateAlignedReady {
		return &AlignmentError{Level: l.lod, X: l.curX, Y: l.baseY,
			Cause: "scan while " + l.state.String()}
	}
	if l.curX%l.cellSize != 0 {
		return &AlignmentError{Level: l.lod, X: l.curX, Y: l.baseY,
			Cause: "scan at misaligned column"}
	}
	// Progress check: all children in this window must already be out.
	// A shortfall means levels lost lockstep, which historically showed
	// up downstream as out-of-order tile delivery.
	if cf := l.childFinishedX(); cf < l.curX+l.cellSize {
		return &AlignmentError{Level: l.lod, X: l.curX, Y: l.baseY,
			Cause: "children not resolved through window right edge"}
	}

	for col := 0; col < 2; col++ {
		for row := range l.cols[col] {
			if l.cols[col][row] == grid.Unknown {
				l.cols[col][row] = grid.Water
				l.b.waterFills++
			}
		}
	}
	for row := 0; row < l.rows; row += 2 {
		cls := grid.Water
		if l.cols[0][row] == grid.Land || l.cols[0][row+1] == grid.Land ||
			l.cols[1][row] == grid.Land || l.cols[1][row+1] == grid.Land {
			cls = grid.Land
		}
		cy := l.baseY + (row/2)*l.cellSize
		if cls == grid.Land {
			l.b.emitAggregate(l.lod, l.curX, cy, cls)
		}
		if l.parent != nil {
			if err := l.parent.mark(l.curX, cy, cls); err != nil {
				return err
			}
		}
	}

	closedX := l.curX
	for i := range l.cols[0] {
		l.cols[0][i] = grid.Unknown
		l.cols[1][i] = grid.Unknown
	}
	l.curX += l.cellSize
	l.finishedX = l.curX
	l.state = stateEmpty

	// Our finished tile column is a child column one level up.
	if l.parent != nil {
		return l.parent.childColumnFinished(closedX)
	}
	return nil
}

func (l *level) childFinishedX() int {
	if l.child != nil {
		return l.child.finishedX
	}
	return l.b.lod0FinishedX
}

// check verifies the level invariants after a state transition.
func (l *level) check() error {
	if l.curX%l.cellSize != 0 {
		return &AlignmentError{Level: l.lod, X: l.curX, Y: l.baseY,
			Cause: "working column not a multiple of cell size"}
	}
	if l.finishedX != l.curX {
		return &AlignmentError{Level: l.lod, X: l.curX, Y: l.baseY,
			Cause: "finished column out of step with working column"}
	}
	if l.rows%2 != 0 {
		return &AlignmentError{Level: l.lod, X: l.curX, Y: l.baseY,
			Cause: "odd buffered row count"}
	}
	return nil
}
