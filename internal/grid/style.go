package grid

import "github.com/hinshun/vt10x"

// UnderlineStyle enumerates the underline kinds a highlight record can
// carry, beyond plain on/off underline.
type UnderlineStyle int

const (
	UnderlineNone UnderlineStyle = iota
	UnderlineSingle
	UnderlineDouble
	UnderlineCurly
	UnderlineDotted
	UnderlineDashed
)

// Highlight is one entry of the numeric id -> style record table. Id 0
// always means "default" and is never allocated by Intern.
type Highlight struct {
	FG, BG, Special Color
	Reverse         bool
	Italic          bool
	Bold            bool
	Underline       UnderlineStyle
	Strikethrough   bool
	Blend           int // 0-100
}

// vt10x glyph attribute bits, ported from the st/vt10x attribute encoding
// (github.com/hinshun/vt10x glyph mode flags).
const (
	attrReverse = 1 << iota
	attrUnderline
	attrBold
	attrGfx
	attrItalic
	attrBlink
	attrWrap
	attrWide
	attrWDummy
)

// highlightFromGlyph derives a Highlight from a vt10x cell's mode bits and
// colors. It does not assign an id — that's HighlightTable.Intern's job.
func highlightFromGlyph(g vt10x.Glyph) Highlight {
	h := Highlight{
		FG: colorFromVT10x(g.FG),
		BG: colorFromVT10x(g.BG),
	}
	mode := int(g.Mode)
	h.Reverse = mode&attrReverse != 0
	h.Bold = mode&attrBold != 0
	h.Italic = mode&attrItalic != 0
	h.Strikethrough = false // vt10x does not track strikethrough independently
	if mode&attrUnderline != 0 {
		h.Underline = UnderlineSingle
	}
	return h
}

// HighlightTable assigns stable numeric ids to Highlight values, reusing
// an existing id for an identical style so that a frame's hl_attr_define
// events only grow when a genuinely new style appears.
type HighlightTable struct {
	byID    map[int64]Highlight
	byValue map[Highlight]int64
	nextID  int64
}

// NewHighlightTable returns a table seeded only with the reserved id 0.
func NewHighlightTable() *HighlightTable {
	return &HighlightTable{
		byID:    map[int64]Highlight{0: {}},
		byValue: map[Highlight]int64{{}: 0},
		nextID:  1,
	}
}

// Intern returns h's id, allocating a new one if h has not been seen.
func (t *HighlightTable) Intern(h Highlight) int64 {
	if id, ok := t.byValue[h]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.byID[id] = h
	t.byValue[h] = id
	return id
}

// Lookup returns the Highlight registered under id.
func (t *HighlightTable) Lookup(id int64) (Highlight, bool) {
	h, ok := t.byID[id]
	return h, ok
}
