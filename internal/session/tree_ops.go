package session

import "fmt"

// SplitPane replaces the leaf holding target with a new split containing
// the original pane and newPane, in that order, with even ratios.
func (t *Tab) SplitPane(target *PaneNode, dir SplitDirection, newPane Node) error {
	replaced := replaceNode(&t.Root, target, func(old Node) Node {
		return NewSplit(dir, old, newPane)
	})
	if !replaced {
		return fmt.Errorf("session: pane not found in tab")
	}
	return nil
}

// replaceNode walks the tree looking for the Node whose Pane == target,
// replacing it in place via replace. Returns whether a replacement
// happened.
func replaceNode(n *Node, target *PaneNode, replace func(Node) Node) bool {
	if n.Pane == target {
		*n = replace(*n)
		return true
	}
	if n.Split == nil {
		return false
	}
	for i := range n.Split.Children {
		if replaceNode(&n.Split.Children[i], target, replace) {
			return true
		}
	}
	return false
}

// RemovePane removes the leaf holding target from the tree. If its parent
// split is left with exactly one child, the split collapses into that
// child (mirroring how tmux/Neovim folds a vacated split). Removing the
// tab's only pane is rejected — a tab always has at least one pane.
func (t *Tab) RemovePane(target *PaneNode) error {
	if t.Root.Pane == target {
		return fmt.Errorf("session: cannot remove the tab's only pane")
	}
	removed := removeFromParent(&t.Root, target)
	if !removed {
		return fmt.Errorf("session: pane not found in tab")
	}
	return nil
}

func removeFromParent(n *Node, target *PaneNode) bool {
	if n.Split == nil {
		return false
	}
	for i, c := range n.Split.Children {
		if c.Pane == target {
			n.Split.Children = append(n.Split.Children[:i], n.Split.Children[i+1:]...)
			n.Split.Ratios = append(n.Split.Ratios[:i], n.Split.Ratios[i+1:]...)
			n.Split.NormalizeRatios()
			if len(n.Split.Children) == 1 {
				*n = n.Split.Children[0]
			}
			return true
		}
		if removeFromParent(&n.Split.Children[i], target) {
			return true
		}
	}
	return false
}

// PaneRect is one pane's terminal size when its tab is tiled into a
// cols x rows viewport.
type PaneRect struct {
	Pane       *PaneNode
	Cols, Rows int
}

// Tile divides a cols x rows viewport among the tab's panes following
// the split tree: a row split divides the rows among its children
// top-to-bottom, a col split divides the columns among its children
// left-to-right, each according to its ratios. Rounding remainders are
// absorbed by the last child so the children's sizes always sum to the
// parent's, matching NormalizeRatios.
func (t Tab) Tile(cols, rows int) []PaneRect {
	var out []PaneRect
	var walk func(n Node, cols, rows int)
	walk = func(n Node, cols, rows int) {
		if n.Pane != nil {
			out = append(out, PaneRect{Pane: n.Pane, Cols: cols, Rows: rows})
			return
		}
		s := n.Split
		switch s.Direction {
		case SplitCol:
			remaining := cols
			for i, child := range s.Children {
				w := remaining
				if i < len(s.Children)-1 {
					w = sizeFromRatio(cols, s.Ratios[i])
					remaining -= w
				}
				walk(child, w, rows)
			}
		default: // SplitRow
			remaining := rows
			for i, child := range s.Children {
				h := remaining
				if i < len(s.Children)-1 {
					h = sizeFromRatio(rows, s.Ratios[i])
					remaining -= h
				}
				walk(child, cols, h)
			}
		}
	}
	walk(t.Root, cols, rows)
	return out
}

func sizeFromRatio(total int, ratio float64) int {
	n := int(float64(total)*ratio + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// DeadPanes returns every pane in the tab whose pty id fails alive — a
// pane is considered dead and rendered as a placeholder when its pty is
// missing from the registry.
func (t Tab) DeadPanes(alive func(ptyID int64) bool) []*PaneNode {
	var dead []*PaneNode
	for _, p := range t.Panes() {
		if !alive(p.PtyID) {
			dead = append(dead, p)
		}
	}
	return dead
}
