package redraw

import "github.com/rivo/uniseg"

// ClusterCount reports how many grapheme clusters s contains.
func ClusterCount(s string) int {
	n := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		n++
	}
	return n
}

// sameCluster reports whether appending next to prev keeps the combined
// text a single grapheme cluster. encodeRun uses this to decide whether a
// cell from the emulator (a combining mark, or one half of a ZWJ-joined
// sequence) rides along with the preceding cell's text rather than
// starting a new wire cell.
func sameCluster(prev, next string) bool {
	if prev == "" || next == "" {
		return false
	}
	return ClusterCount(prev+next) == 1
}
