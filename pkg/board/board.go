// Package board implements the Ultimate Tic-Tac-Toe board rules: marks,
// line detection on any 3x3 grid and the next-active-board computation.
// The same winner detection runs on a sub-board's cells and on the macro
// board's sub-board results.
package board

// Mark represents the content of a single cell or a decided board outcome.
type Mark string

// Possible marks. Draw only appears as a decided sub-board result, never
// inside a cell.
const (
	None Mark = ""
	X    Mark = "X"
	O    Mark = "O"
	Draw Mark = "D"
)

// Opp returns the opposing player's mark.
func (m Mark) Opp() Mark {
	if m == X {
		return O
	}
	return X
}

// Valid reports whether m is a playable symbol.
func (m Mark) Valid() bool {
	return m == X || m == O
}

// SubBoard is one 3x3 grid of cells, row-major.
type SubBoard [9]Mark

// Full reports whether every cell holds a mark.
func (b SubBoard) Full() bool {
	for _, c := range b {
		if c == None {
			return false
		}
	}
	return true
}

// The 8 canonical winning triples of a 3x3 grid.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the decided outcome of a 9-cell board: X or O if a line of
// three identical non-draw marks exists, Draw if the board is full without
// one, and None while the board is still undecided. Draw marks never form a
// line, so the same function scores the macro board over sub-board results.
func Winner(cells SubBoard) Mark {
	for _, l := range lines {
		a := cells[l[0]]
		if a != None && a != Draw && a == cells[l[1]] && a == cells[l[2]] {
			return a
		}
	}
	if cells.Full() {
		return Draw
	}
	return None
}

// ValidIndex reports whether i addresses a cell or sub-board.
func ValidIndex(i int) bool {
	return i >= 0 && i <= 8
}
