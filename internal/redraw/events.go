// Package redraw implements a Neovim-compatible diff of a PTY's emulator
// screen against a client's last-known view, emitted as a compact
// `redraw` notification.
package redraw

import "github.com/chriswa/ptymuxd/internal/wire"

// GridResize builds a `grid_resize(grid, width, height)` event.
func GridResize(gridID int64, width, height int) wire.Array {
	return wire.Array{"grid_resize", wire.Array{gridID, int64(width), int64(height)}}
}

// HLAttrDefine builds an `hl_attr_define(id, rgb_attrs, cterm_attrs,
// info)` event.
func HLAttrDefine(id int64, rgbAttrs, ctermAttrs wire.Map) wire.Array {
	return wire.Array{"hl_attr_define", wire.Array{id, rgbAttrs, ctermAttrs, wire.Array{}}}
}

// DefaultColorsSet builds a `default_colors_set` event.
func DefaultColorsSet(rgbFG, rgbBG, rgbSP, ctermFG, ctermBG int64) wire.Array {
	return wire.Array{"default_colors_set", wire.Array{rgbFG, rgbBG, rgbSP, ctermFG, ctermBG}}
}

// GridLine builds a `grid_line(grid, row, col_start, cells, wrap)` event.
func GridLine(gridID int64, row, colStart int, cells wire.Array, wrap bool) wire.Array {
	return wire.Array{"grid_line", wire.Array{gridID, int64(row), int64(colStart), cells, wrap}}
}

// GridCursorGoto builds a `grid_cursor_goto(grid, row, col)` event.
func GridCursorGoto(gridID int64, row, col int) wire.Array {
	return wire.Array{"grid_cursor_goto", wire.Array{gridID, int64(row), int64(col)}}
}

// GridClear builds a `grid_clear(grid)` event.
func GridClear(gridID int64) wire.Array {
	return wire.Array{"grid_clear", wire.Array{gridID}}
}

// Flush builds the frame-terminating `flush()` event.
func Flush() wire.Array {
	return wire.Array{"flush", wire.Array{}}
}
