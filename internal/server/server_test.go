package server

import (
	"context"
	"log"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chriswa/ptymuxd/internal/config"
	"github.com/chriswa/ptymuxd/internal/session"
	"github.com/chriswa/ptymuxd/internal/sessionstore"
	"github.com/chriswa/ptymuxd/internal/wire"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := sessionstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.WorkerJoinTimeoutMS = 200
	logger := log.New(os.Stderr, "", 0)
	s := New(cfg, store, logger)

	sockPath := filepath.Join(dir, "test.sock")
	ctx, cancel := context.WithCancel(context.Background())
	go s.ListenAndServe(ctx, sockPath)
	t.Cleanup(cancel)

	for i := 0; i < 50; i++ {
		if _, err := os.Stat(sockPath); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	return s, sockPath
}

func dialAndRoundtrip(t *testing.T, sockPath string, msgID uint64, method string, params wire.Array) wire.Message {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	frame, err := wire.EncodeRequest(msgID, method, params)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64*1024)
	dec := &wire.Decoder{}
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %s", err)
		}
		dec.Feed(buf[:n])
		msg, ok, err := dec.Next()
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			return msg
		}
	}
}

func TestSpawnListAndClosePty(t *testing.T) {
	_, sockPath := testServer(t)

	spawnResp := dialAndRoundtrip(t, sockPath, 1, "spawn_pty", wire.Array{
		"/bin/sh", wire.Array{"-c", "sleep 5"}, "/", wire.Map{}, int64(80), int64(24),
	})
	if spawnResp.Err != nil {
		t.Fatalf("spawn_pty failed: %+v", spawnResp.Err)
	}
	result := spawnResp.Result.(wire.Map)
	ptyID, _ := result.Get("pty_id")

	listResp := dialAndRoundtrip(t, sockPath, 2, "list_ptys", wire.Array{})
	entries := listPtysEntries(t, listResp)
	found := false
	for _, e := range entries {
		m := e.(wire.Map)
		if id, _ := m.Get("id"); id == ptyID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected spawned pty %v in list_ptys result, got %v", ptyID, entries)
	}

	closeResp := dialAndRoundtrip(t, sockPath, 3, "close_pty", wire.Array{ptyID})
	if closeResp.Err != nil {
		t.Fatalf("close_pty failed: %+v", closeResp.Err)
	}
}

func TestSessionSaveAndLoadRoundtrip(t *testing.T) {
	_, sockPath := testServer(t)

	root := wire.Map{
		{Key: "type", Value: "pane"},
		{Key: "pty_id", Value: int64(1)},
		{Key: "cwd", Value: "/tmp"},
	}
	tabs := wire.Array{wire.Map{{Key: "root", Value: root}}}

	saveResp := dialAndRoundtrip(t, sockPath, 1, "session_save", wire.Array{"work", tabs, int64(0)})
	if saveResp.Err != nil {
		t.Fatalf("session_save failed: %+v", saveResp.Err)
	}

	loadResp := dialAndRoundtrip(t, sockPath, 2, "session_load", wire.Array{"work"})
	if loadResp.Err != nil {
		t.Fatalf("session_load failed: %+v", loadResp.Err)
	}
	got := loadResp.Result.(wire.Map)
	name, _ := got.Get("name")
	if name != "work" {
		t.Fatalf("expected session name 'work', got %v", name)
	}
}

func TestUnknownMethodReturnsError(t *testing.T) {
	_, sockPath := testServer(t)
	resp := dialAndRoundtrip(t, sockPath, 1, "no_such_method", wire.Array{})
	if resp.Err == nil {
		t.Fatal("expected an error for an unknown method")
	}
}

// listPtysEntries unwraps list_ptys's {ptys: [...]} response shape.
func listPtysEntries(t *testing.T, resp wire.Message) wire.Array {
	t.Helper()
	result, ok := resp.Result.(wire.Map)
	if !ok {
		t.Fatalf("expected list_ptys result to be a map, got %#v", resp.Result)
	}
	ptys, ok := result.Get("ptys")
	if !ok {
		t.Fatalf("expected list_ptys result to carry a 'ptys' key, got %v", result)
	}
	entries, ok := ptys.(wire.Array)
	if !ok {
		t.Fatalf("expected 'ptys' to be an array, got %#v", ptys)
	}
	return entries
}

func roundtripOn(t *testing.T, conn net.Conn, dec *wire.Decoder, msgID uint64, method string, params wire.Array) wire.Message {
	t.Helper()
	frame, err := wire.EncodeRequest(msgID, method, params)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %s", err)
		}
		dec.Feed(buf[:n])
		for {
			msg, ok, err := dec.Next()
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			if msg.Type == wire.TypeResponse && msg.MsgID == msgID {
				return msg
			}
			// a redraw/bell/title_changed notification arrived first; keep reading
		}
	}
}

func TestAttachSessionAndSplitPane(t *testing.T) {
	_, sockPath := testServer(t)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	dec := &wire.Decoder{}

	attachResp := roundtripOn(t, conn, dec, 1, "attach", wire.Array{"work"})
	if attachResp.Err != nil {
		t.Fatalf("attach(session) failed: %+v", attachResp.Err)
	}

	splitResp := roundtripOn(t, conn, dec, 2, "split_pane", wire.Array{"col"})
	if splitResp.Err != nil {
		t.Fatalf("split_pane failed: %+v", splitResp.Err)
	}
	result := splitResp.Result.(wire.Map)
	if _, ok := result.Get("pty_id"); !ok {
		t.Fatalf("expected pty_id in split_pane result, got %v", result)
	}

	listResp := roundtripOn(t, conn, dec, 3, "list_ptys", wire.Array{})
	entries := listPtysEntries(t, listResp)
	if len(entries) != 2 {
		t.Fatalf("expected 2 ptys after one split, got %d", len(entries))
	}
}

func TestSplitPane_WithoutActiveSessionFails(t *testing.T) {
	_, sockPath := testServer(t)
	resp := dialAndRoundtrip(t, sockPath, 1, "split_pane", wire.Array{"row"})
	if resp.Err == nil {
		t.Fatal("expected split_pane without attach(session_name) to fail")
	}
}

func TestResize_DirectAttachResizesThatPty(t *testing.T) {
	srv, sockPath := testServer(t)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	dec := &wire.Decoder{}

	spawnResp := roundtripOn(t, conn, dec, 1, "spawn_pty", wire.Array{
		"/bin/sh", wire.Array{"-c", "sleep 5"}, "/", wire.Map{}, int64(80), int64(24),
	})
	if spawnResp.Err != nil {
		t.Fatalf("spawn_pty failed: %+v", spawnResp.Err)
	}
	ptyID, _ := spawnResp.Result.(wire.Map).Get("pty_id")

	attachResp := roundtripOn(t, conn, dec, 2, "attach", wire.Array{ptyID})
	if attachResp.Err != nil {
		t.Fatalf("attach failed: %+v", attachResp.Err)
	}

	resizeResp := roundtripOn(t, conn, dec, 3, "resize", wire.Array{int64(30), int64(100)})
	if resizeResp.Err != nil {
		t.Fatalf("resize failed: %+v", resizeResp.Err)
	}

	w, ok := srv.ptys.Get(ptyID.(int64))
	if !ok {
		t.Fatal("expected pty to still exist")
	}
	if w.Cols != 100 || w.Rows != 30 {
		t.Fatalf("expected 100x30, got %dx%d", w.Cols, w.Rows)
	}
}

func TestResize_SessionAttachRetilesPanes(t *testing.T) {
	srv, sockPath := testServer(t)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	dec := &wire.Decoder{}

	if resp := roundtripOn(t, conn, dec, 1, "attach", wire.Array{"work"}); resp.Err != nil {
		t.Fatalf("attach(session) failed: %+v", resp.Err)
	}
	splitResp := roundtripOn(t, conn, dec, 2, "split_pane", wire.Array{"col"})
	if splitResp.Err != nil {
		t.Fatalf("split_pane failed: %+v", splitResp.Err)
	}

	resizeResp := roundtripOn(t, conn, dec, 3, "resize", wire.Array{int64(40), int64(100)})
	if resizeResp.Err != nil {
		t.Fatalf("resize failed: %+v", resizeResp.Err)
	}

	sess, ok := srv.sessions.Get("work")
	if !ok {
		t.Fatal("expected session 'work' to exist")
	}
	total := 0
	for _, w := range srv.ptys.List() {
		if w.Rows != 40 {
			t.Fatalf("expected every pane resized to 40 rows, got %d", w.Rows)
		}
		total += w.Cols
	}
	if total != 100 {
		t.Fatalf("expected pane columns to sum to 100, got %d", total)
	}
	if len(sess.Tabs[sess.ActiveTab].Panes()) != 2 {
		t.Fatalf("expected 2 panes in the session's active tab")
	}
}

func TestSwitchTab_MovesAttachmentAndPersists(t *testing.T) {
	srv, sockPath := testServer(t)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	dec := &wire.Decoder{}

	if resp := roundtripOn(t, conn, dec, 1, "attach", wire.Array{"work"}); resp.Err != nil {
		t.Fatalf("attach(session) failed: %+v", resp.Err)
	}

	secondWorker, err := srv.spawnDefaultShell("")
	if err != nil {
		t.Fatalf("spawnDefaultShell: %s", err)
	}
	srv.sessions.With("work", func(sess *session.Session, ok bool) {
		if !ok {
			t.Fatal("expected session 'work' to exist")
		}
		sess.Tabs = append(sess.Tabs, session.Tab{Root: session.NewPane(secondWorker.ID, "")})
	})
	// switch_tab patches an existing session file, so save the live session once first.
	live, _ := srv.sessions.Get("work")
	if err := srv.store.Save(*live); err != nil {
		t.Fatalf("store.Save: %s", err)
	}

	switchResp := roundtripOn(t, conn, dec, 2, "switch_tab", wire.Array{int64(1)})
	if switchResp.Err != nil {
		t.Fatalf("switch_tab failed: %+v", switchResp.Err)
	}
	result := switchResp.Result.(wire.Map)
	ptyID, _ := result.Get("pty_id")
	if ptyID != secondWorker.ID {
		t.Fatalf("expected switch_tab to attach to %d, got %v", secondWorker.ID, ptyID)
	}

	sess, ok := srv.sessions.Get("work")
	if !ok || sess.ActiveTab != 1 {
		t.Fatalf("expected live session's active tab to be 1, got %+v", sess)
	}

	loaded, err := srv.store.Load("work")
	if err != nil {
		t.Fatalf("store.Load: %s", err)
	}
	if loaded.ActiveTab != 1 {
		t.Fatalf("expected persisted active_tab 1, got %d", loaded.ActiveTab)
	}
}

func TestSetPaneRatio_AdjustsAndPersistsSplit(t *testing.T) {
	srv, sockPath := testServer(t)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	dec := &wire.Decoder{}

	if resp := roundtripOn(t, conn, dec, 1, "attach", wire.Array{"work"}); resp.Err != nil {
		t.Fatalf("attach(session) failed: %+v", resp.Err)
	}
	if resp := roundtripOn(t, conn, dec, 2, "split_pane", wire.Array{"col"}); resp.Err != nil {
		t.Fatalf("split_pane failed: %+v", resp.Err)
	}
	// set_pane_ratio patches an existing session file, so save the live session once first.
	live, _ := srv.sessions.Get("work")
	if err := srv.store.Save(*live); err != nil {
		t.Fatalf("store.Save: %s", err)
	}

	ratioResp := roundtripOn(t, conn, dec, 3, "set_pane_ratio", wire.Array{int64(0), 0.3})
	if ratioResp.Err != nil {
		t.Fatalf("set_pane_ratio failed: %+v", ratioResp.Err)
	}

	sess, ok := srv.sessions.Get("work")
	if !ok {
		t.Fatal("expected session 'work' to exist")
	}
	split := sess.Tabs[sess.ActiveTab].Root.Split
	if split == nil || len(split.Ratios) != 2 {
		t.Fatalf("expected a two-child split, got %+v", split)
	}
	if split.Ratios[0] != 0.3 {
		t.Fatalf("expected ratio 0.3, got %v", split.Ratios[0])
	}

	loaded, err := srv.store.Load("work")
	if err != nil {
		t.Fatalf("store.Load: %s", err)
	}
	loadedSplit := loaded.Tabs[loaded.ActiveTab].Root.Split
	if loadedSplit == nil || loadedSplit.Ratios[0] != 0.3 {
		t.Fatalf("expected persisted ratio 0.3, got %+v", loadedSplit)
	}
}
