// Package screen implements a fixed-grid VT/ANSI character buffer: a cursor,
// a CSI (Control-Sequence-Introducer) interpreter sufficient for a
// line-oriented shell experience, a scroll region, and a scrollback ring.
//
// A Buffer is single-writer: exactly one goroutine (typically the consumer
// driving a GUI or test) feeds it bytes via Write and reads it back via
// DisplayLines. It carries no internal locking — callers that share a Buffer
// across goroutines must serialize access themselves.
package screen

// ScrollbackLimit is the maximum number of lines retained in the scrollback
// ring; the oldest line is dropped once the limit is reached.
const ScrollbackLimit = 1024

// Color is an RGB color, 8 bits per channel.
type Color struct {
	R, G, B uint8
}

// DefaultColor is the buffer's reset foreground color (white).
var DefaultColor = Color{255, 255, 255}

// Cell is one grid position: a byte-wide character plus its foreground color.
//
// Characters are decoded byte-safe, not rune-safe: each byte >= 0x20 occupies
// exactly one cell regardless of any multi-byte UTF-8 sequence it may be part
// of. This matches the non-goal of grapheme-cluster-aware column accounting.
type Cell struct {
	Ch    byte
	Color Color
}

// Line is one saved scrollback row.
type Line []Cell

// parserState is the CSI interpreter's state.
type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
)

// Buffer is a fixed rows x cols character+color grid with cursor, scroll
// region, and scrollback.
type Buffer struct {
	Rows, Cols int

	grid [][]Cell

	cursorRow, cursorCol int
	scrollTop, scrollBot int

	scrollback       []Line
	ScrollbackOffset int

	curColor Color

	state     parserState
	csiParams string
}

// New creates a Buffer of the given size. Both dimensions must be >= 1.
func New(rows, cols int) *Buffer {
	b := &Buffer{
		Rows:      rows,
		Cols:      cols,
		scrollBot: rows - 1,
		curColor:  DefaultColor,
	}
	b.grid = newGrid(rows, cols)
	return b
}

func newGrid(rows, cols int) [][]Cell {
	grid := make([][]Cell, rows)
	for i := range grid {
		grid[i] = newRow(cols)
	}
	return grid
}

func newRow(cols int) []Cell {
	row := make([]Cell, cols)
	for j := range row {
		row[j] = Cell{' ', DefaultColor}
	}
	return row
}

// CursorRow and CursorCol expose the current cursor position.
func (b *Buffer) CursorRow() int { return b.cursorRow }
func (b *Buffer) CursorCol() int { return b.cursorCol }

// Cell returns the grid cell at (row, col).
func (b *Buffer) Cell(row, col int) Cell { return b.grid[row][col] }

// ScrollbackLen returns the number of lines currently retained in scrollback.
func (b *Buffer) ScrollbackLen() int { return len(b.scrollback) }

// Write feeds raw PTY output bytes into the buffer, interpreting plain text
// and CSI sequences incrementally. Splitting a byte stream at any boundary
// and feeding it across multiple Write calls produces the same grid as
// feeding it in one call.
func (b *Buffer) Write(data []byte) {
	for _, c := range data {
		b.writeByte(c)
	}
}

func (b *Buffer) writeByte(c byte) {
	switch b.state {
	case stateEscape:
		if c == '[' {
			b.state = stateCSI
			b.csiParams = ""
		} else {
			// Unsupported escape forms (not ESC '[') are discarded silently.
			b.state = stateGround
		}
		return
	case stateCSI:
		switch {
		case c >= '0' && c <= '9', c == ';':
			b.csiParams += string(c)
		case (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z'):
			b.dispatchCSI(c, b.csiParams)
			b.state = stateGround
		default:
			// Byte outside [0-9;] and not a final letter: the sequence does
			// not match ESC '[' [0-9;]* final-byte, abandon it.
			b.state = stateGround
		}
		return
	}

	// stateGround
	if c == 0x1b {
		b.state = stateEscape
		return
	}
	b.writePlain(c)
}

func (b *Buffer) writePlain(c byte) {
	switch {
	case c == '\n':
		b.newline()
	case c == '\r':
		b.cursorCol = 0
	case c == '\b':
		if b.cursorCol > 0 {
			b.cursorCol--
		}
	case c == '\t':
		b.tab()
	case c >= 0x20:
		b.printChar(c)
	default:
		// Other control bytes are discarded.
	}
}

func (b *Buffer) printChar(c byte) {
	if b.cursorCol >= b.Cols {
		b.newline()
	}
	b.grid[b.cursorRow][b.cursorCol] = Cell{c, b.curColor}
	b.cursorCol++
}

func (b *Buffer) tab() {
	b.cursorCol = ((b.cursorCol / 8) + 1) * 8
	if b.cursorCol >= b.Cols {
		b.newline()
	}
}

func (b *Buffer) newline() {
	b.cursorCol = 0
	if b.cursorRow >= b.scrollBot {
		b.scrollUp()
	} else {
		b.cursorRow++
	}
}

// scrollUp saves the top-of-region row to scrollback, shifts the region up
// by one line, and clears the newly exposed bottom row.
func (b *Buffer) scrollUp() {
	saved := make(Line, len(b.grid[b.scrollTop]))
	copy(saved, b.grid[b.scrollTop])
	b.scrollback = append(b.scrollback, saved)
	if len(b.scrollback) > ScrollbackLimit {
		b.scrollback = b.scrollback[len(b.scrollback)-ScrollbackLimit:]
	}

	for i := b.scrollTop; i < b.scrollBot; i++ {
		b.grid[i] = b.grid[i+1]
	}
	b.grid[b.scrollBot] = newRow(b.Cols)
}

// Resize changes the grid dimensions, preserving content at (i, j) for
// i < min(oldRows, rows) and j < min(oldCols, cols). The scroll region's
// bottom is reset to rows-1; cursor position is clipped to the new bounds.
func (b *Buffer) Resize(rows, cols int) {
	if rows == b.Rows && cols == b.Cols {
		return
	}

	newGridBuf := newGrid(rows, cols)
	for i := 0; i < min(len(b.grid), rows); i++ {
		for j := 0; j < min(len(b.grid[i]), cols); j++ {
			newGridBuf[i][j] = b.grid[i][j]
		}
	}
	b.grid = newGridBuf
	b.Rows = rows
	b.Cols = cols

	if b.cursorRow > rows-1 {
		b.cursorRow = rows - 1
	}
	if b.cursorCol > cols {
		b.cursorCol = cols
	}
	if b.scrollTop > rows-1 {
		b.scrollTop = rows - 1
	}
	b.scrollBot = rows - 1
}

// DisplayLines returns exactly Rows lines for rendering. If ScrollbackOffset
// is > 0, the first min(offset, Rows) lines come from the scrollback tail
// (oldest-of-the-slice first); the remainder comes from the current buffer
// top.
func (b *Buffer) DisplayLines() []Line {
	lines := make([]Line, 0, b.Rows)

	if b.ScrollbackOffset > 0 {
		fromScrollback := min(b.ScrollbackOffset, b.Rows, len(b.scrollback))
		startIdx := len(b.scrollback) - fromScrollback
		for i := startIdx; i < len(b.scrollback); i++ {
			lines = append(lines, b.scrollback[i])
		}
		remaining := b.Rows - len(lines)
		for i := 0; i < remaining && i < len(b.grid); i++ {
			row := make(Line, len(b.grid[i]))
			copy(row, b.grid[i])
			lines = append(lines, row)
		}
		return lines
	}

	for i := 0; i < b.Rows; i++ {
		row := make(Line, len(b.grid[i]))
		copy(row, b.grid[i])
		lines = append(lines, row)
	}
	return lines
}
