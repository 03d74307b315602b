package redraw

import (
	"github.com/chriswa/ptymuxd/internal/grid"
	"github.com/chriswa/ptymuxd/internal/wire"
)

// ClientView is the per-client state the builder diffs against: a
// per-grid last-sent screen snapshot, last-sent cursor position and
// visibility, and last-sent style/palette table. Zero value represents a
// client that has never seen this grid.
type ClientView struct {
	GridID        int64
	HaveSnapshot  bool
	Cells         [][]grid.Cell
	Cols, Rows    int
	CursorX       int
	CursorY       int
	CursorVisible bool
	SeenHL        map[int64]struct{}
	DefaultFG     uint32
	DefaultBG     uint32
	DefaultSP     uint32
	HaveDefaults  bool
}

// NewClientView returns an empty view for gridID.
func NewClientView(gridID int64) *ClientView {
	return &ClientView{GridID: gridID, SeenHL: make(map[int64]struct{})}
}

// Frame is a pending redraw computed from Build. Commit must be called
// after the frame has been successfully encoded and written; simply
// discarding the Frame leaves the ClientView unmodified so a partially
// sent frame doesn't desync the client's tracked state.
type Frame struct {
	Events []wire.Array
	commit func()
}

// Commit applies the view updates staged by Build. Call this only after
// every event in Events has been durably written to the client socket.
func (f *Frame) Commit() {
	if f.commit != nil {
		f.commit()
	}
}

// Params returns Events as the wire.Array the redraw notification's
// params should carry: the event list itself, with each event
// identifying its own grid, matching the Neovim ui-redraw wire shape
// [event, event, ...] rather than wrapping it behind a grid id.
func (f Frame) Params() wire.Array {
	params := make(wire.Array, len(f.Events))
	for i, e := range f.Events {
		params[i] = e
	}
	return params
}

// defaultFG/BG/SP are the daemon's fixed default palette.
const (
	defaultFGRGB int64 = 0xd4d4d4
	defaultBGRGB int64 = 0x1e1e1e
	defaultSPRGB int64 = 0xff0000
)

// Build computes the redraw events needed to bring view up to date with
// snap, and returns a Frame whose Commit applies that update to view. It
// never mutates view directly.
func Build(view *ClientView, snap grid.Snapshot, table *grid.HighlightTable) Frame {
	var events []wire.Array
	newSeen := cloneSeen(view.SeenHL)
	usedHL := map[int64]bool{}

	firstPaint := !view.HaveSnapshot || view.Cols != snap.Cols || view.Rows != snap.Rows
	if firstPaint {
		events = append(events, GridResize(view.GridID, snap.Cols, snap.Rows))
	}
	if !view.HaveDefaults {
		events = append(events, DefaultColorsSet(defaultFGRGB, defaultBGRGB, defaultSPRGB, -1, -1))
	}

	var lineEvents []wire.Array
	for y := 0; y < snap.Rows; y++ {
		newRow := snap.Cells[y]
		var oldRow []grid.Cell
		if !firstPaint && y < len(view.Cells) {
			oldRow = view.Cells[y]
		}
		lo, hi, changed := diffRow(oldRow, newRow)
		if !changed {
			continue
		}
		runs := encodeRun(newRow[lo : hi+1])
		for _, r := range runs {
			usedHL[r.hlID] = true
		}
		lineEvents = append(lineEvents, GridLine(view.GridID, y, lo, toWireCells(runs), false))
	}

	// Emit hl_attr_define for any style this frame uses that the client
	// has not yet seen, before the grid_line events that reference them.
	for hlID := range usedHL {
		if _, ok := newSeen[hlID]; ok || hlID == 0 {
			continue
		}
		hl, ok := table.Lookup(hlID)
		if !ok {
			continue
		}
		events = append(events, HLAttrDefine(hlID, highlightToRGBMap(hl), wire.Map{}))
		newSeen[hlID] = struct{}{}
	}
	events = append(events, lineEvents...)

	if firstPaint || view.CursorX != snap.CursorX || view.CursorY != snap.CursorY {
		events = append(events, GridCursorGoto(view.GridID, snap.CursorY, snap.CursorX))
	}
	events = append(events, Flush())

	commit := func() {
		view.HaveSnapshot = true
		view.Cols, view.Rows = snap.Cols, snap.Rows
		view.Cells = snap.Cells
		view.CursorX, view.CursorY = snap.CursorX, snap.CursorY
		view.CursorVisible = snap.CursorVisible
		view.SeenHL = newSeen
		view.HaveDefaults = true
		view.DefaultFG = uint32(defaultFGRGB)
		view.DefaultBG = uint32(defaultBGRGB)
		view.DefaultSP = uint32(defaultSPRGB)
	}
	return Frame{Events: events, commit: commit}
}

func cloneSeen(m map[int64]struct{}) map[int64]struct{} {
	out := make(map[int64]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// diffRow returns the inclusive [lo, hi] column range that differs between
// old and new, and whether any difference exists at all.
func diffRow(old, new []grid.Cell) (lo, hi int, changed bool) {
	if old == nil {
		if len(new) == 0 {
			return 0, 0, false
		}
		return 0, len(new) - 1, true
	}
	n := len(new)
	lo = -1
	for i := 0; i < n; i++ {
		var o grid.Cell
		if i < len(old) {
			o = old[i]
		}
		if o != new[i] {
			lo = i
			break
		}
	}
	if lo == -1 {
		return 0, 0, false
	}
	hi = n - 1
	for hi > lo {
		var o grid.Cell
		if hi < len(old) {
			o = old[hi]
		}
		if o != new[hi] {
			break
		}
		hi--
	}
	return lo, hi, true
}

// run is one run-length-encoded span of identical-style cells within a
// grid_line event.
type run struct {
	text   string
	hlID   int64
	repeat int
}

// encodeRun run-length-encodes a span of cells sharing style, merging a
// combining mark or ZWJ-joined half-cell into the preceding cell's text
// so a full grapheme cluster travels as one wire cell.
func encodeRun(cells []grid.Cell) []run {
	var merged []grid.Cell
	for _, c := range cells {
		if len(merged) > 0 && sameCluster(merged[len(merged)-1].Text, c.Text) {
			last := &merged[len(merged)-1]
			last.Text += c.Text
			continue
		}
		merged = append(merged, c)
	}

	var runs []run
	for _, c := range merged {
		if len(runs) > 0 {
			last := &runs[len(runs)-1]
			if last.text == c.Text && last.hlID == c.HLID {
				last.repeat++
				continue
			}
		}
		runs = append(runs, run{text: c.Text, hlID: c.HLID, repeat: 1})
	}
	return runs
}

func toWireCells(runs []run) wire.Array {
	cells := make(wire.Array, 0, len(runs))
	var prevHL int64 = -1
	for _, r := range runs {
		var entry wire.Array
		switch {
		case r.hlID == prevHL && r.repeat == 1:
			entry = wire.Array{r.text}
		case r.repeat == 1:
			entry = wire.Array{r.text, r.hlID}
		default:
			entry = wire.Array{r.text, r.hlID, int64(r.repeat)}
		}
		prevHL = r.hlID
		cells = append(cells, entry)
	}
	return cells
}

func highlightToRGBMap(hl grid.Highlight) wire.Map {
	m := wire.Map{}
	if hl.FG.Kind != grid.ColorDefault {
		m = append(m, wire.MapEntry{Key: "foreground", Value: int64(hl.FG.RGB24(0))})
	}
	if hl.BG.Kind != grid.ColorDefault {
		m = append(m, wire.MapEntry{Key: "background", Value: int64(hl.BG.RGB24(0))})
	}
	if hl.Special.Kind != grid.ColorDefault {
		m = append(m, wire.MapEntry{Key: "special", Value: int64(hl.Special.RGB24(0))})
	}
	if hl.Reverse {
		m = append(m, wire.MapEntry{Key: "reverse", Value: true})
	}
	if hl.Italic {
		m = append(m, wire.MapEntry{Key: "italic", Value: true})
	}
	if hl.Bold {
		m = append(m, wire.MapEntry{Key: "bold", Value: true})
	}
	if hl.Strikethrough {
		m = append(m, wire.MapEntry{Key: "strikethrough", Value: true})
	}
	if hl.Underline != grid.UnderlineNone {
		m = append(m, wire.MapEntry{Key: "underline", Value: true})
	}
	if hl.Blend != 0 {
		m = append(m, wire.MapEntry{Key: "blend", Value: int64(hl.Blend)})
	}
	return m
}
