package grid

import "github.com/hinshun/vt10x"

// Cell is one screen position: grapheme text + highlight id. Wide
// characters occupy two cells; the trailing cell has empty Text and the
// same HLID as the leading cell.
type Cell struct {
	Text string
	HLID int64
}

// Snapshot is a read of an emulator's screen at one instant: one row of
// cells per screen line, plus cursor and default-color state. It is the
// unit the redraw builder diffs against a client's last-sent view.
type Snapshot struct {
	Cols, Rows    int
	Cells         [][]Cell
	CursorX       int
	CursorY       int
	CursorVisible bool
	Title         string
}

// Capture reads the current state of emu into a Snapshot, interning every
// distinct style it encounters into table.
func Capture(emu Emulator, table *HighlightTable) Snapshot {
	emu.Lock()
	defer emu.Unlock()

	cols, rows := emu.Size()
	snap := Snapshot{
		Cols:  cols,
		Rows:  rows,
		Cells: make([][]Cell, rows),
		Title: emu.Title(),
	}
	cur := emu.Cursor()
	snap.CursorX, snap.CursorY = cur.X, cur.Y
	snap.CursorVisible = emu.CursorVisible()

	for y := 0; y < rows; y++ {
		row := make([]Cell, cols)
		for x := 0; x < cols; x++ {
			g := emu.Cell(x, y)
			row[x] = glyphToCell(g, table)
		}
		snap.Cells[y] = row
	}
	return snap
}

func glyphToCell(g vt10x.Glyph, table *HighlightTable) Cell {
	text := string(g.Char)
	if g.Char == 0 {
		text = " "
	}
	if int(g.Mode)&attrWDummy != 0 {
		// Trailing half of a wide character: empty text, same style.
		text = ""
	}
	hl := highlightFromGlyph(g)
	return Cell{Text: text, HLID: table.Intern(hl)}
}
