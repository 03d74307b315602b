package session

import "testing"

func TestSplitPane_EvenRatios(t *testing.T) {
	p1 := NewPane(1, "/tmp")
	tab := Tab{Root: p1}
	pane1 := tab.Root.Pane

	newPane := NewPane(2, "/tmp")
	if err := tab.SplitPane(pane1, SplitRow, newPane); err != nil {
		t.Fatal(err)
	}
	if err := tab.Validate(); err != nil {
		t.Fatal(err)
	}
	if tab.Root.Split == nil || len(tab.Root.Split.Children) != 2 {
		t.Fatalf("expected a split with 2 children, got %+v", tab.Root)
	}
	r := tab.Root.Split.Ratios
	if r[0] != 0.5 || r[1] != 0.5 {
		t.Fatalf("expected even 0.5/0.5 ratios, got %v", r)
	}
	panes := tab.Panes()
	if len(panes) != 2 || panes[0].PtyID != 1 || panes[1].PtyID != 2 {
		t.Fatalf("unexpected panes: %+v", panes)
	}
}

func TestNormalizeRatios_RemainderGoesToLastChild(t *testing.T) {
	s := SplitNode{Children: []Node{NewPane(1, ""), NewPane(2, ""), NewPane(3, "")}, Ratios: []float64{0.3, 0.3, 0.3}}
	s.NormalizeRatios()
	sum := s.Ratios[0] + s.Ratios[1] + s.Ratios[2]
	if sum != 1 {
		t.Fatalf("ratios must sum to exactly 1, got %v (sum %v)", s.Ratios, sum)
	}
}

func TestRemovePane_CollapsesSingleChildSplit(t *testing.T) {
	p1 := NewPane(1, "")
	tab := Tab{Root: p1}
	pane1 := tab.Root.Pane
	pane2node := NewPane(2, "")
	if err := tab.SplitPane(pane1, SplitCol, pane2node); err != nil {
		t.Fatal(err)
	}
	if err := tab.RemovePane(pane1); err != nil {
		t.Fatal(err)
	}
	if tab.Root.Pane == nil || tab.Root.Pane.PtyID != 2 {
		t.Fatalf("expected the split to collapse to the remaining pane, got %+v", tab.Root)
	}
}

func TestRemovePane_RejectsLastPane(t *testing.T) {
	tab := Tab{Root: NewPane(1, "")}
	if err := tab.RemovePane(tab.Root.Pane); err == nil {
		t.Fatal("expected an error removing a tab's only pane")
	}
}

func TestDeadPanes(t *testing.T) {
	tab := Tab{Root: NewSplit(SplitRow, NewPane(1, ""), NewPane(2, ""))}
	alive := func(id int64) bool { return id == 1 }
	dead := tab.DeadPanes(alive)
	if len(dead) != 1 || dead[0].PtyID != 2 {
		t.Fatalf("expected pty 2 to be dead, got %+v", dead)
	}
}

func TestSession_ActivePane(t *testing.T) {
	sess := Session{
		Name:      "work",
		Tabs:      []Tab{{Root: NewPane(7, "/repo")}},
		ActiveTab: 0,
	}
	p, err := sess.ActivePane()
	if err != nil {
		t.Fatal(err)
	}
	if p.PtyID != 7 {
		t.Fatalf("expected pty 7, got %d", p.PtyID)
	}
}

func TestTile_RowSplitDividesRows(t *testing.T) {
	tab := Tab{Root: NewSplit(SplitRow, NewPane(1, ""), NewPane(2, ""))}
	rects := tab.Tile(100, 41)
	if len(rects) != 2 {
		t.Fatalf("expected 2 rects, got %d", len(rects))
	}
	if rects[0].Cols != 100 || rects[1].Cols != 100 {
		t.Fatalf("row split should not divide columns, got %+v", rects)
	}
	if rects[0].Rows+rects[1].Rows != 41 {
		t.Fatalf("expected rows to sum to 41, got %d+%d", rects[0].Rows, rects[1].Rows)
	}
	if rects[0].Pane.PtyID != 1 || rects[1].Pane.PtyID != 2 {
		t.Fatalf("unexpected pane order: %+v", rects)
	}
}

func TestTile_ColSplitDividesColumns(t *testing.T) {
	tab := Tab{Root: NewSplit(SplitCol, NewPane(1, ""), NewPane(2, ""), NewPane(3, ""))}
	rects := tab.Tile(100, 40)
	if len(rects) != 3 {
		t.Fatalf("expected 3 rects, got %d", len(rects))
	}
	sum := 0
	for _, r := range rects {
		if r.Rows != 40 {
			t.Fatalf("col split should not divide rows, got %+v", r)
		}
		sum += r.Cols
	}
	if sum != 100 {
		t.Fatalf("expected columns to sum to 100, got %d", sum)
	}
}
