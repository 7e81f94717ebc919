package screen

import "strconv"

// dispatchCSI acts on one completed CSI sequence: ESC '[' params final.
// Unrecognized finals are discarded silently, matching the regex
// ESC '[' [0-9;]* final-byte that the parser state machine already enforces
// one byte at a time.
func (b *Buffer) dispatchCSI(final byte, params string) {
	switch final {
	case 'A':
		n := param1(params, 1)
		b.cursorRow = max(0, b.cursorRow-n)
	case 'B':
		n := param1(params, 1)
		b.cursorRow = min(b.Rows-1, b.cursorRow+n)
	case 'C':
		n := param1(params, 1)
		b.cursorCol = min(b.Cols-1, b.cursorCol+n)
	case 'D':
		n := param1(params, 1)
		b.cursorCol = max(0, b.cursorCol-n)
	case 'H', 'f':
		b.cursorPosition(params)
	case 'J':
		b.eraseInDisplay(param1(params, 0))
	case 'K':
		b.eraseInLine(param1(params, 0))
	case 'm':
		b.selectGraphicRendition(params)
	default:
		// Final byte outside the supported subset; discarded.
	}
}

// param1 parses a single-parameter CSI argument, defaulting to def when
// params is empty.
func param1(params string, def int) int {
	if params == "" {
		return def
	}
	n, err := strconv.Atoi(params)
	if err != nil {
		return def
	}
	return n
}

// cursorPosition handles CSI H / CSI f: params "row;col", 1-based, default
// 1;1, clamped to the grid.
func (b *Buffer) cursorPosition(params string) {
	if params == "" {
		b.cursorRow = 0
		b.cursorCol = 0
		return
	}

	parts := splitParams(params)
	row := 1
	col := 1
	if len(parts) >= 1 && parts[0] != "" {
		if n, err := strconv.Atoi(parts[0]); err == nil {
			row = n
		}
	}
	if len(parts) >= 2 && parts[1] != "" {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			col = n
		}
	}

	b.cursorRow = max(0, min(b.Rows-1, row-1))
	b.cursorCol = max(0, min(b.Cols-1, col-1))
}

func splitParams(params string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(params); i++ {
		if i == len(params) || params[i] == ';' {
			parts = append(parts, params[start:i])
			start = i + 1
		}
	}
	return parts
}

// eraseInDisplay handles CSI J. Cleared cells get ' ' and the default color.
func (b *Buffer) eraseInDisplay(mode int) {
	switch mode {
	case 0: // cursor -> end of screen
		b.clearRange(b.cursorRow, b.cursorCol, b.Rows-1, b.Cols-1)
	case 1: // start of screen -> cursor
		b.clearRange(0, 0, b.cursorRow, b.cursorCol)
	case 2: // whole screen
		b.clearRange(0, 0, b.Rows-1, b.Cols-1)
	}
}

// eraseInLine handles CSI K.
func (b *Buffer) eraseInLine(mode int) {
	switch mode {
	case 0: // cursor -> end of line
		b.clearRange(b.cursorRow, b.cursorCol, b.cursorRow, b.Cols-1)
	case 1: // start of line -> cursor
		b.clearRange(b.cursorRow, 0, b.cursorRow, b.cursorCol)
	case 2: // whole line
		b.clearRange(b.cursorRow, 0, b.cursorRow, b.Cols-1)
	}
}

// clearRange clears cells in row-major order from (r0, c0) to (r1, c1)
// inclusive.
func (b *Buffer) clearRange(r0, c0, r1, c1 int) {
	for i := r0; i <= r1 && i < b.Rows; i++ {
		start := 0
		end := b.Cols - 1
		if i == r0 {
			start = c0
		}
		if i == r1 {
			end = c1
		}
		for j := start; j <= end && j < b.Cols; j++ {
			b.grid[i][j] = Cell{' ', DefaultColor}
		}
	}
}

// selectGraphicRendition handles CSI m: 0 resets to the default color;
// 30-37 and 90-97 set the foreground to the fixed ANSI palette; all other
// codes are ignored.
func (b *Buffer) selectGraphicRendition(params string) {
	if params == "" {
		params = "0"
	}
	for _, p := range splitParams(params) {
		if p == "" {
			continue
		}
		code, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		if code == 0 {
			b.curColor = DefaultColor
			continue
		}
		if c, ok := ansiPalette[code]; ok {
			b.curColor = c
		}
	}
}
