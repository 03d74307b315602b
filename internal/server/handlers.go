package server

import (
	"context"

	"github.com/chriswa/ptymuxd/internal/client"
	"github.com/chriswa/ptymuxd/internal/ptyworker"
	"github.com/chriswa/ptymuxd/internal/rpcserver"
	"github.com/chriswa/ptymuxd/internal/session"
	"github.com/chriswa/ptymuxd/internal/wire"
)

func (s *Server) registerHandlers() {
	s.disp.Handle("spawn_pty", s.handleSpawnPty)
	s.disp.Handle("close_pty", s.handleClosePty)
	s.disp.Handle("list_ptys", s.handleListPtys)
	s.disp.Handle("attach", s.handleAttach)
	s.disp.Handle("resize", s.handleResize)
	s.disp.Handle("split_pane", s.handleSplitPane)
	s.disp.Handle("switch_tab", s.handleSwitchTab)
	s.disp.Handle("set_pane_ratio", s.handleSetPaneRatio)
	s.disp.Handle("session_save", s.handleSessionSave)
	s.disp.Handle("session_load", s.handleSessionLoad)
	s.disp.Handle("session_rename", s.handleSessionRename)
	s.disp.Handle("session_delete", s.handleSessionDelete)
	s.disp.Handle("session_list", s.handleSessionList)

	s.disp.HandleNotification("write_pty", s.handleWritePty)
	s.disp.HandleNotification("mouse", s.handleMouse)
	s.disp.HandleNotification("detach", s.handleDetach)
}

func paramErr(msg string) error {
	return &rpcserver.RPCError{Code: "invalid_params", Message: msg}
}

func notFound(msg string) error {
	return &rpcserver.RPCError{Code: "not_found", Message: msg}
}

func stringParam(params wire.Array, i int) (string, bool) {
	if i >= len(params) {
		return "", false
	}
	v, ok := params[i].(string)
	return v, ok
}

func intParam(params wire.Array, i int) (int64, bool) {
	if i >= len(params) {
		return 0, false
	}
	switch n := params[i].(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func floatParam(params wire.Array, i int) (float64, bool) {
	if i >= len(params) {
		return 0, false
	}
	switch n := params[i].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// handleSpawnPty handles spawn_pty(command, args, cwd, env, cols, rows).
func (s *Server) handleSpawnPty(c *client.Client, params wire.Array) (any, error) {
	if len(params) != 6 {
		return nil, paramErr("spawn_pty wants 6 params")
	}
	command, ok := params[0].(string)
	if !ok {
		return nil, paramErr("command must be a string")
	}
	argsArr, _ := params[1].(wire.Array)
	args := make([]string, 0, len(argsArr))
	for _, a := range argsArr {
		str, ok := a.(string)
		if !ok {
			return nil, paramErr("args must be strings")
		}
		args = append(args, str)
	}
	cwd, _ := params[2].(string)
	envMap, _ := params[3].(wire.Map)
	env := make(map[string]string, len(envMap))
	for _, e := range envMap {
		k, ok1 := e.Key.(string)
		v, ok2 := e.Value.(string)
		if ok1 && ok2 {
			env[k] = v
		}
	}
	cols, ok := intParam(params, 4)
	if !ok || cols <= 0 {
		return nil, paramErr("cols must be a positive integer")
	}
	rows, ok := intParam(params, 5)
	if !ok || rows <= 0 {
		return nil, paramErr("rows must be a positive integer")
	}

	w, err := s.spawn(ptyworker.SpawnConfig{
		Command: command,
		Args:    args,
		Cwd:     cwd,
		Env:     env,
		Cols:    int(cols),
		Rows:    int(rows),
	})
	if err != nil {
		return nil, &rpcserver.RPCError{Code: "spawn_failed", Message: err.Error()}
	}

	return wire.Map{
		{Key: "pty_id", Value: w.ID},
		{Key: "pid", Value: int64(w.Pid)},
	}, nil
}

// spawn allocates a pty id, starts the worker, and wires it into the
// registry, notify watcher, and exit/bell callbacks. Every path that
// creates a PTY (spawn_pty, attach(session_name), split_pane) goes
// through this one function.
func (s *Server) spawn(cfg ptyworker.SpawnConfig) (*ptyworker.Worker, error) {
	id := s.ptys.Reserve()
	w, err := ptyworker.Spawn(id, cfg, s.log, s.onPtyExit, s.onBell)
	if err != nil {
		return nil, err
	}
	s.ptys.Put(w)
	s.watchNotify(w)
	return w, nil
}

// spawnDefaultShell starts the configured default shell for split_pane
// and attach(session_name), which don't carry an explicit command.
func (s *Server) spawnDefaultShell(cwd string) (*ptyworker.Worker, error) {
	return s.spawn(ptyworker.SpawnConfig{
		Command: s.cfg.DefaultShell,
		Cwd:     cwd,
		Env:     s.cfg.DefaultShellEnv,
		Cols:    80,
		Rows:    24,
	})
}

// watchNotify starts a goroutine relaying a worker's notify-pipe pokes
// onto the event loop, where the scheduler coalesces them into renders.
func (s *Server) watchNotify(w *ptyworker.Worker) {
	go func() {
		buf := make([]byte, 1)
		for {
			_, err := w.NotifyR.Read(buf)
			if err != nil {
				return
			}
			id := w.ID
			s.loop.Post(func() { s.sched.Notify(id) })
		}
	}()
}

func (s *Server) handleClosePty(c *client.Client, params wire.Array) (any, error) {
	id, ok := intParam(params, 0)
	if !ok {
		return nil, paramErr("pty_id must be an integer")
	}
	w, ok := s.ptys.Get(id)
	if !ok {
		return nil, notFound("no such pty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerJoinTimeout())
	defer cancel()
	if err := w.Shutdown(ctx, s.cfg.WorkerJoinTimeout()); err != nil {
		s.log.Printf("close_pty %d: %s", id, err)
	}
	s.ptys.Remove(id)
	s.sched.Forget(id)
	return nil, nil
}

func (s *Server) handleListPtys(c *client.Client, params wire.Array) (any, error) {
	workers := s.ptys.List()
	entries := make(wire.Array, 0, len(workers))
	for _, w := range workers {
		if !w.IsAlive() {
			continue
		}
		entries = append(entries, wire.Map{
			{Key: "id", Value: w.ID},
			{Key: "cwd", Value: w.WorkingDir()},
			{Key: "title", Value: w.LastKnownTitle()},
			{Key: "attached_client_count", Value: int64(s.subscriberCount(w.ID))},
		})
	}
	return wire.Map{{Key: "ptys", Value: entries}}, nil
}

// subscriberCount reports how many connected clients are subscribed to
// ptyID, directly or as part of a session tab.
func (s *Server) subscriberCount(ptyID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cl := range s.clients {
		if cl.IsSubscribed(ptyID) {
			n++
		}
	}
	return n
}

// handleAttach handles attach(pty_id | session_name): subscribes the
// caller to redraw notifications for a PTY and returns its scrollback for
// replay. A string argument attaches to a named working session instead,
// creating it (with one default-shell pane) the first time it's named.
func (s *Server) handleAttach(c *client.Client, params wire.Array) (any, error) {
	if len(params) != 1 {
		return nil, paramErr("attach wants 1 param")
	}
	if name, ok := params[0].(string); ok {
		return s.attachSession(c, name)
	}
	id, ok := intParam(params, 0)
	if !ok {
		return nil, paramErr("attach wants a pty_id or a session name")
	}
	return s.attachPty(c, id, "")
}

// attachSession resolves (creating if needed) a live working session by
// name and attaches the caller to its active pane, recording the session
// as the caller's active one for subsequent split_pane calls.
func (s *Server) attachSession(c *client.Client, name string) (any, error) {
	sess, existed := s.sessions.Get(name)
	if !existed {
		w, err := s.spawnDefaultShell("")
		if err != nil {
			return nil, &rpcserver.RPCError{Code: "spawn_failed", Message: err.Error()}
		}
		created := &session.Session{Name: name, Tabs: []session.Tab{{Root: session.NewPane(w.ID, "")}}}
		sess = s.sessions.PutIfAbsent(created)
	}
	pane, err := sess.ActivePane()
	if err != nil {
		return nil, &rpcserver.RPCError{Code: "internal", Message: err.Error()}
	}
	return s.attachPty(c, pane.PtyID, name)
}

func (s *Server) attachPty(c *client.Client, id int64, sessionName string) (any, error) {
	w, ok := s.ptys.Get(id)
	if !ok {
		return nil, notFound("no such pty")
	}
	c.Subscribe(id, client.Subscription{PtyID: id, SessionID: sessionName, IsSession: sessionName != ""})
	c.SetActiveSession(sessionName, id)
	scrollback := w.Scrollback.Contents()

	s.loop.Post(func() { s.renderPty(id) })

	return wire.Map{
		{Key: "pty_id", Value: id},
		{Key: "scrollback", Value: wire.Bin(scrollback)},
		{Key: "cols", Value: int64(w.Cols)},
		{Key: "rows", Value: int64(w.Rows)},
	}, nil
}

func (s *Server) handleDetach(c *client.Client, params wire.Array) {
	id, ok := intParam(params, 0)
	if !ok {
		return
	}
	c.Unsubscribe(id)
	c.DropView(id)
	if _, activeID := c.ActiveSession(); activeID == id {
		c.SetActiveSession("", 0)
	}
}

// handleSplitPane handles split_pane(direction): splits the caller's
// active pane within its active session, spawning a new default-shell
// PTY alongside it and focusing the new pane.
func (s *Server) handleSplitPane(c *client.Client, params wire.Array) (any, error) {
	dirStr, ok := stringParam(params, 0)
	if !ok {
		return nil, paramErr("direction must be a string")
	}
	dir := session.SplitRow
	if dirStr == "col" {
		dir = session.SplitCol
	}

	sessionName, activePtyID := c.ActiveSession()
	if sessionName == "" {
		return nil, &rpcserver.RPCError{Code: "no_active_session", Message: "split_pane requires attach(session_name) first"}
	}

	cwd := ""
	if w, ok := s.ptys.Get(activePtyID); ok {
		cwd = w.WorkingDir()
	}
	newWorker, err := s.spawnDefaultShell(cwd)
	if err != nil {
		return nil, &rpcserver.RPCError{Code: "spawn_failed", Message: err.Error()}
	}

	var splitErr error
	s.sessions.With(sessionName, func(sess *session.Session, ok bool) {
		if !ok {
			splitErr = notFound("active session no longer exists")
			return
		}
		tab := &sess.Tabs[sess.ActiveTab]
		var target *session.PaneNode
		for _, p := range tab.Panes() {
			if p.PtyID == activePtyID {
				target = p
				break
			}
		}
		if target == nil {
			splitErr = notFound("active pane not found in session")
			return
		}
		splitErr = tab.SplitPane(target, dir, session.NewPane(newWorker.ID, cwd))
	})
	if splitErr != nil {
		return nil, splitErr
	}
	c.SetActiveSession(sessionName, newWorker.ID)

	return wire.Map{{Key: "pty_id", Value: newWorker.ID}}, nil
}

// handleSwitchTab handles switch_tab(tab_index): makes tab_index the
// caller's active session's active tab, persists the change in place via
// the session store's patch, and attaches the caller to the new tab's
// active pane.
func (s *Server) handleSwitchTab(c *client.Client, params wire.Array) (any, error) {
	tabIndex, ok := intParam(params, 0)
	if !ok || tabIndex < 0 {
		return nil, paramErr("tab_index must be a non-negative integer")
	}
	sessionName, prevPtyID := c.ActiveSession()
	if sessionName == "" {
		return nil, &rpcserver.RPCError{Code: "no_active_session", Message: "switch_tab requires attach(session_name) first"}
	}

	var newActive *session.PaneNode
	var switchErr error
	s.sessions.With(sessionName, func(sess *session.Session, ok bool) {
		if !ok {
			switchErr = notFound("active session no longer exists")
			return
		}
		if int(tabIndex) >= len(sess.Tabs) {
			switchErr = paramErr("tab_index out of range")
			return
		}
		sess.ActiveTab = int(tabIndex)
		newActive, switchErr = sess.ActivePane()
	})
	if switchErr != nil {
		return nil, switchErr
	}

	if err := s.store.SetActiveTab(sessionName, int(tabIndex)+1); err != nil {
		s.log.Printf("switch_tab %s: persist active_tab: %s", sessionName, err)
	}

	c.Unsubscribe(prevPtyID)
	c.DropView(prevPtyID)
	return s.attachPty(c, newActive.PtyID, sessionName)
}

// handleSetPaneRatio handles set_pane_ratio(child_index, ratio): sets one
// child's share of the caller's active session's active tab to ratio,
// when that tab's root is a single split, rescaling its siblings to share
// the rest, and persists every child's ratio in place via the session
// store's patch.
func (s *Server) handleSetPaneRatio(c *client.Client, params wire.Array) (any, error) {
	childIndex, ok := intParam(params, 0)
	if !ok || childIndex < 0 {
		return nil, paramErr("child_index must be a non-negative integer")
	}
	ratio, ok := floatParam(params, 1)
	if !ok || ratio <= 0 || ratio >= 1 {
		return nil, paramErr("ratio must be a float strictly between 0 and 1")
	}

	sessionName, _ := c.ActiveSession()
	if sessionName == "" {
		return nil, &rpcserver.RPCError{Code: "no_active_session", Message: "set_pane_ratio requires attach(session_name) first"}
	}

	var tabIndex int
	var persisted []float64
	var setErr error
	s.sessions.With(sessionName, func(sess *session.Session, ok bool) {
		if !ok {
			setErr = notFound("active session no longer exists")
			return
		}
		tab := &sess.Tabs[sess.ActiveTab]
		split := tab.Root.Split
		if split == nil || int(childIndex) >= len(split.Ratios) {
			setErr = paramErr("active tab's root is not a split with that child")
			return
		}
		others := 1 - split.Ratios[childIndex]
		for i := range split.Ratios {
			if i == int(childIndex) {
				continue
			}
			if others > 0 {
				split.Ratios[i] *= (1 - ratio) / others
			} else {
				split.Ratios[i] = (1 - ratio) / float64(len(split.Ratios)-1)
			}
		}
		split.Ratios[childIndex] = ratio
		split.NormalizeRatios()
		tabIndex = sess.ActiveTab
		persisted = append([]float64(nil), split.Ratios...)
	})
	if setErr != nil {
		return nil, setErr
	}

	for i, r := range persisted {
		if err := s.store.SetChildRatio(sessionName, tabIndex, i, r); err != nil {
			s.log.Printf("set_pane_ratio %s: persist ratio: %s", sessionName, err)
			break
		}
	}
	return nil, nil
}

// handleMouse handles mouse(pty_id, bytes): forwards an already-encoded
// mouse-reporting escape sequence to the PTY, the way write_pty forwards
// keystrokes.
func (s *Server) handleMouse(c *client.Client, params wire.Array) {
	id, ok := intParam(params, 0)
	if !ok || len(params) < 2 {
		return
	}
	w, ok := s.ptys.Get(id)
	if !ok {
		return
	}
	var data []byte
	switch v := params[1].(type) {
	case wire.Bin:
		data = v
	case string:
		data = []byte(v)
	default:
		return
	}
	if err := w.WriteInput(data); err != nil {
		s.log.Printf("mouse %d: %s", id, err)
	}
}

// handleResize handles resize(rows, cols) against the caller's current
// attachment: if attached directly to a PTY that PTY's window resizes,
// and if attached to a session the active tab is re-tiled into the new
// viewport and every pane's PTY resizes to its own tile.
func (s *Server) handleResize(c *client.Client, params wire.Array) (any, error) {
	rows, ok := intParam(params, 0)
	if !ok || rows <= 0 {
		return nil, paramErr("rows must be a positive integer")
	}
	cols, ok := intParam(params, 1)
	if !ok || cols <= 0 {
		return nil, paramErr("cols must be a positive integer")
	}

	sessionName, ptyID := c.ActiveSession()
	if ptyID == 0 {
		return nil, notFound("not attached to a pty or session")
	}

	if sessionName == "" {
		w, ok := s.ptys.Get(ptyID)
		if !ok {
			return nil, notFound("no such pty")
		}
		if err := w.Resize(int(cols), int(rows)); err != nil {
			return nil, &rpcserver.RPCError{Code: "resize_failed", Message: err.Error()}
		}
		return nil, nil
	}

	sess, ok := s.sessions.Get(sessionName)
	if !ok {
		return nil, notFound("active session no longer exists")
	}
	tab := sess.Tabs[sess.ActiveTab]
	for _, rect := range tab.Tile(int(cols), int(rows)) {
		w, ok := s.ptys.Get(rect.Pane.PtyID)
		if !ok {
			continue
		}
		if err := w.Resize(rect.Cols, rect.Rows); err != nil {
			s.log.Printf("resize pane %d: %s", rect.Pane.PtyID, err)
		}
	}
	return nil, nil
}

// handleWritePty handles write_pty(pty_id, data) notifications carrying
// keystrokes or pasted bytes.
func (s *Server) handleWritePty(c *client.Client, params wire.Array) {
	id, ok := intParam(params, 0)
	if !ok || len(params) < 2 {
		return
	}
	w, ok := s.ptys.Get(id)
	if !ok {
		return
	}
	var data []byte
	switch v := params[1].(type) {
	case wire.Bin:
		data = v
	case string:
		data = []byte(v)
	default:
		return
	}
	if err := w.WriteInput(data); err != nil {
		s.log.Printf("write_pty %d: %s", id, err)
	}
}

func (s *Server) handleSessionSave(c *client.Client, params wire.Array) (any, error) {
	name, ok := stringParam(params, 0)
	if !ok {
		return nil, paramErr("name must be a string")
	}
	tabsArr, ok := params[1].(wire.Array)
	if !ok {
		return nil, paramErr("tabs must be an array")
	}
	activeTab, _ := intParam(params, 2)

	sess := session.Session{Name: name, ActiveTab: int(activeTab)}
	for _, t := range tabsArr {
		tm, ok := t.(wire.Map)
		if !ok {
			return nil, paramErr("each tab must be a map")
		}
		rootV, _ := tm.Get("root")
		root, err := nodeFromWire(rootV)
		if err != nil {
			return nil, paramErr(err.Error())
		}
		sess.Tabs = append(sess.Tabs, session.Tab{Root: root})
	}
	if err := s.store.Save(sess); err != nil {
		return nil, &rpcserver.RPCError{Code: "save_failed", Message: err.Error()}
	}
	return nil, nil
}

func (s *Server) handleSessionLoad(c *client.Client, params wire.Array) (any, error) {
	name, ok := stringParam(params, 0)
	if !ok {
		return nil, paramErr("name must be a string")
	}
	sess, err := s.store.Load(name)
	if err != nil {
		return nil, notFound(err.Error())
	}
	return sessionToWire(sess), nil
}

func (s *Server) handleSessionRename(c *client.Client, params wire.Array) (any, error) {
	oldName, ok1 := stringParam(params, 0)
	newName, ok2 := stringParam(params, 1)
	if !ok1 || !ok2 {
		return nil, paramErr("oldName and newName must be strings")
	}
	if err := s.store.Rename(oldName, newName); err != nil {
		return nil, &rpcserver.RPCError{Code: "rename_failed", Message: err.Error()}
	}
	return nil, nil
}

func (s *Server) handleSessionDelete(c *client.Client, params wire.Array) (any, error) {
	name, ok := stringParam(params, 0)
	if !ok {
		return nil, paramErr("name must be a string")
	}
	if err := s.store.Delete(name); err != nil {
		return nil, &rpcserver.RPCError{Code: "delete_failed", Message: err.Error()}
	}
	return nil, nil
}

func (s *Server) handleSessionList(c *client.Client, params wire.Array) (any, error) {
	names, err := s.store.List()
	if err != nil {
		return nil, &rpcserver.RPCError{Code: "list_failed", Message: err.Error()}
	}
	out := make(wire.Array, 0, len(names))
	for _, n := range names {
		out = append(out, n)
	}
	return out, nil
}
