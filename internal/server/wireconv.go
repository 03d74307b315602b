package server

import (
	"fmt"

	"github.com/chriswa/ptymuxd/internal/session"
	"github.com/chriswa/ptymuxd/internal/wire"
)

// nodeFromWire decodes a layout Node from its wire Map form:
// {type:"pane", pty_id, cwd} or {type:"split", direction, children, ratios}.
func nodeFromWire(v any) (session.Node, error) {
	m, ok := v.(wire.Map)
	if !ok {
		return session.Node{}, fmt.Errorf("node must be a map")
	}
	typ, _ := m.Get("type")
	switch typ {
	case "pane":
		ptyID, _ := m.Get("pty_id")
		id, ok := ptyID.(int64)
		if !ok {
			return session.Node{}, fmt.Errorf("pane node missing pty_id")
		}
		cwd, _ := m.Get("cwd")
		cwdStr, _ := cwd.(string)
		return session.NewPane(id, cwdStr), nil

	case "split":
		dirVal, _ := m.Get("direction")
		dirStr, _ := dirVal.(string)
		dir := session.SplitRow
		if dirStr == "col" {
			dir = session.SplitCol
		}
		childrenVal, _ := m.Get("children")
		childrenArr, ok := childrenVal.(wire.Array)
		if !ok {
			return session.Node{}, fmt.Errorf("split node missing children")
		}
		children := make([]session.Node, 0, len(childrenArr))
		for _, cv := range childrenArr {
			child, err := nodeFromWire(cv)
			if err != nil {
				return session.Node{}, err
			}
			children = append(children, child)
		}
		n := session.NewSplit(dir, children...)
		ratiosVal, _ := m.Get("ratios")
		if ratiosArr, ok := ratiosVal.(wire.Array); ok && len(ratiosArr) == len(children) {
			for i, rv := range ratiosArr {
				if f, ok := rv.(float64); ok {
					n.Split.Ratios[i] = f
				}
			}
			n.Split.NormalizeRatios()
		}
		return n, nil

	default:
		return session.Node{}, fmt.Errorf("unknown node type %v", typ)
	}
}

func nodeToWire(n session.Node) wire.Map {
	if n.Pane != nil {
		return wire.Map{
			{Key: "type", Value: "pane"},
			{Key: "pty_id", Value: n.Pane.PtyID},
			{Key: "cwd", Value: n.Pane.Cwd},
		}
	}
	children := make(wire.Array, 0, len(n.Split.Children))
	ratios := make(wire.Array, 0, len(n.Split.Ratios))
	for _, c := range n.Split.Children {
		children = append(children, nodeToWire(c))
	}
	for _, r := range n.Split.Ratios {
		ratios = append(ratios, r)
	}
	return wire.Map{
		{Key: "type", Value: "split"},
		{Key: "direction", Value: n.Split.Direction.String()},
		{Key: "children", Value: children},
		{Key: "ratios", Value: ratios},
	}
}

func sessionToWire(sess session.Session) wire.Map {
	tabs := make(wire.Array, 0, len(sess.Tabs))
	for _, t := range sess.Tabs {
		tabs = append(tabs, wire.Map{{Key: "root", Value: nodeToWire(t.Root)}})
	}
	return wire.Map{
		{Key: "name", Value: sess.Name},
		{Key: "tabs", Value: tabs},
		{Key: "active_tab", Value: int64(sess.ActiveTab)},
	}
}
