// Package server wires PTY workers, sessions, and connected clients
// together behind the wire RPC dispatcher and drives the accept loop.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chriswa/ptymuxd/internal/client"
	"github.com/chriswa/ptymuxd/internal/config"
	"github.com/chriswa/ptymuxd/internal/loop"
	"github.com/chriswa/ptymuxd/internal/ptyworker"
	"github.com/chriswa/ptymuxd/internal/redraw"
	"github.com/chriswa/ptymuxd/internal/rpcserver"
	"github.com/chriswa/ptymuxd/internal/scheduler"
	"github.com/chriswa/ptymuxd/internal/session"
	"github.com/chriswa/ptymuxd/internal/sessionstore"
	"github.com/chriswa/ptymuxd/internal/wire"
)

// Server is the daemon's core: it owns the PTY registry, connected
// clients, the event loop, and the socket listener.
type Server struct {
	cfg   config.Config
	log   *log.Logger
	store sessionstore.Store

	loop     *loop.Loop
	sched    *scheduler.Scheduler
	disp     *rpcserver.Dispatcher
	ptys     *ptyRegistry
	sessions *liveSessionRegistry
	wg       sync.WaitGroup

	mu        sync.Mutex
	clients   map[int64]*client.Client
	nextCID   int64
	listener  net.Listener
	socketPth string

	cancel         context.CancelFunc
	sessionWatcher *sessionstore.Watcher
}

// New builds a Server but does not yet listen. Call ListenAndServe to
// start accepting connections.
func New(cfg config.Config, store sessionstore.Store, logger *log.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		log:      logger,
		store:    store,
		loop:     loop.New(256),
		ptys:     newPtyRegistry(),
		sessions: newLiveSessionRegistry(),
		clients:  make(map[int64]*client.Client),
	}
	s.sched = scheduler.New(s.loop, cfg.FrameBudget(), s.renderPty)
	s.disp = rpcserver.New(logger)
	s.registerHandlers()
	return s
}

// ListenAndServe unlinks any stale socket at path, binds a new one with
// owner-only permissions, and accepts connections until ctx is canceled
// or a shutdown signal arrives.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("server: chmod socket: %w", err)
	}
	s.listener = ln
	s.socketPth = socketPath

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop.Run()
	s.wg.Add(1)
	go s.sweepLoop(ctx)
	s.startSessionWatcher()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case sig := <-sigCh:
			s.log.Printf("received %s, shutting down", sig)
		case <-ctx.Done():
		}
		s.Shutdown()
	}()

	s.log.Printf("listening on %s", socketPath)
	for {
		conn, err := ln.Accept()
		if err != nil {
			break
		}
		go s.handleConn(conn)
	}
	s.wg.Wait()
	return nil
}

// dirStore is implemented by session stores that persist to a single
// directory a Watcher can watch; stores that don't support it simply skip
// the external-edit reload.
type dirStore interface {
	Dir() string
}

// startSessionWatcher watches the session store's directory for external
// edits and reloads a live session's active tab when its file changes.
// Its onChange callback runs on the watcher's own goroutine, so it hands
// off to the event loop before touching server state.
func (s *Server) startSessionWatcher() {
	ds, ok := s.store.(dirStore)
	if !ok {
		return
	}
	w, err := sessionstore.NewWatcher(ds.Dir(), s.log)
	if err != nil {
		s.log.Printf("session watcher: %s", err)
		return
	}
	s.sessionWatcher = w
	go w.Run(func(name string) {
		s.loop.Post(func() { s.reloadSessionActiveTab(name) })
	})
}

// reloadSessionActiveTab re-reads name's persisted active_tab and applies
// it to the live session of the same name, if one exists — the runtime
// reaction to a session file edited outside the daemon. The live
// session's pty ids are untouched: only a process that actually attaches
// can own PTYs, so a hand-edited tab tree's pty ids are not replayed.
func (s *Server) reloadSessionActiveTab(name string) {
	disk, err := s.store.Load(name)
	if err != nil {
		return
	}
	s.sessions.With(name, func(sess *session.Session, ok bool) {
		if !ok || disk.ActiveTab < 0 || disk.ActiveTab >= len(sess.Tabs) {
			return
		}
		sess.ActiveTab = disk.ActiveTab
	})
}

func (s *Server) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.IdleSweepInterval())
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n := s.ptys.SweepDead(s.cfg.DeadSessionTTL()); n > 0 {
				s.log.Printf("swept %d dead pty(s)", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops accepting connections, cancels the context sweepLoop and
// the signal-watch goroutine run on, signals every live child to hang up,
// and unlinks the socket. Safe to call more than once.
func (s *Server) Shutdown() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.sessionWatcher != nil {
		_ = s.sessionWatcher.Close()
	}
	ctx, cancelJoin := context.WithTimeout(context.Background(), s.cfg.WorkerJoinTimeout())
	defer cancelJoin()
	for _, w := range s.ptys.List() {
		if !w.IsAlive() {
			continue
		}
		if err := w.Shutdown(ctx, s.cfg.WorkerJoinTimeout()); err != nil {
			s.log.Printf("shutdown: %s", err)
		}
	}
	if s.socketPth != "" {
		_ = os.Remove(s.socketPth)
	}
	s.loop.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	s.mu.Lock()
	s.nextCID++
	id := s.nextCID
	c := client.New(id, conn, s.cfg.MaxOutboundQueueBytes)
	s.clients[id] = c
	s.mu.Unlock()

	s.log.Printf("%s connected", c)
	go s.writePump(c)

	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		c.Close()
		s.log.Printf("%s disconnected", c)
	}()

	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.Feed(buf[:n])
			for {
				msg, ok, err := c.NextMessage()
				if err != nil {
					s.log.Printf("%s: malformed frame: %s", c, err)
					return
				}
				if !ok {
					break
				}
				s.handleMessage(c, msg)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(c *client.Client, msg wire.Message) {
	frame, err := s.disp.Dispatch(c, msg)
	if err != nil {
		s.log.Printf("%s: dispatch: %s", c, err)
		return
	}
	if frame == nil {
		return
	}
	s.writeFrame(c, frame)
}

// writeFrame queues frame for c without blocking the caller — the
// dispatcher goroutine that renders every PTY must never stall behind a
// slow client's socket. writePump does the actual writing.
func (s *Server) writeFrame(c *client.Client, frame []byte) {
	if ok := c.Enqueue(frame); !ok {
		s.log.Printf("%s: outbound queue exceeded cap, disconnecting", c)
		c.Close()
	}
}

// writePump is the sole writer of c's socket: it wakes whenever Enqueue
// adds a frame and drains the queue until empty, so a slow reader on the
// other end blocks this goroutine rather than the dispatcher.
func (s *Server) writePump(c *client.Client) {
	for range c.Wake() {
		for {
			frame, ok := c.DrainOne()
			if !ok {
				break
			}
			if _, err := c.Conn().Write(frame); err != nil {
				s.log.Printf("%s: write: %s", c, err)
				c.Close()
				return
			}
		}
	}
}

// notifyClient encodes and sends a notification, disconnecting the client
// if its outbound queue is over capacity.
func (s *Server) notifyClient(c *client.Client, method string, params wire.Array) {
	frame, err := wire.EncodeNotification(method, params)
	if err != nil {
		s.log.Printf("%s: encode %s: %s", c, method, err)
		return
	}
	s.writeFrame(c, frame)
}

func (s *Server) broadcastSubscribed(ptyID int64, method string, params wire.Array) {
	s.mu.Lock()
	targets := make([]*client.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.IsSubscribed(ptyID) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		s.notifyClient(c, method, params)
	}
}

// renderPty runs on the dispatcher goroutine (via the scheduler) and
// pushes a redraw frame to every client subscribed to ptyID.
func (s *Server) renderPty(ptyID int64) {
	w, ok := s.ptys.Get(ptyID)
	if !ok {
		return
	}
	snap := w.Snapshot()
	if title := snap.Title; title != "" && title != w.LastKnownTitle() {
		w.SetLastKnownTitle(title)
		s.broadcastSubscribed(ptyID, "title_changed", wire.Array{ptyID, title})
	}

	s.mu.Lock()
	targets := make([]*client.Client, 0)
	for _, c := range s.clients {
		if c.IsSubscribed(ptyID) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		view := c.ViewFor(ptyID)
		frame := redraw.Build(view, snap, w.Table)
		encoded, err := wire.EncodeNotification("redraw", frame.Params())
		if err != nil {
			s.log.Printf("%s: encode redraw: %s", c, err)
			continue
		}
		s.writeFrame(c, encoded)
		frame.Commit()
	}
}

func (s *Server) onPtyExit(w *ptyworker.Worker) {
	s.sched.Forget(w.ID)
	code, _ := w.ExitInfo()
	s.broadcastSubscribed(w.ID, "pty_exit", wire.Array{w.ID, int64(code)})
}

func (s *Server) onBell(w *ptyworker.Worker) {
	s.broadcastSubscribed(w.ID, "bell", wire.Array{w.ID})
}

