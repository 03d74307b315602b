// Package ptyworker owns one forked child per PTY: it starts the child
// under a pseudo-terminal, loops reads into a terminal emulator, and
// writes keystrokes back in.
package ptyworker

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"
	"github.com/xo/terminfo"
	"golang.org/x/sys/unix"

	"github.com/chriswa/ptymuxd/internal/grid"
)

// SpawnConfig describes a PTY to create. The child's environment is
// explicit, not inherited from the daemon process.
type SpawnConfig struct {
	Command string
	Args    []string
	Cwd     string
	Env     map[string]string
	Rows    int
	Cols    int
}

// Worker owns one live PTY: the child process, the master fd, the
// emulator, the lock guarding emulator+title+master-fd writes, and the notify
// pipe that wakes the main loop. Exactly one goroutine (readLoop) reads
// the master fd; all emulator mutation happens there. Rows/cols are only
// ever changed by Resize, called from the main thread.
type Worker struct {
	ID int64

	mu    sync.Mutex
	Emu   grid.Emulator
	Table *grid.HighlightTable
	Cols  int
	Rows  int
	Title string
	Cwd   string
	Alive bool

	ExitCode int
	ExitedAt time.Time

	cmd *exec.Cmd
	pty *os.File
	Pid int

	Scrollback *RingBuffer

	notifyW    *os.File
	notifyWRaw syscall.RawConn // lets poke write to notifyW without the runtime poller retrying on EAGAIN
	NotifyR    *os.File        // read end; the owner registers this with the event loop

	log *log.Logger

	onExit func(w *Worker)
	onBell func(w *Worker)
	exited chan struct{}
}

// Spawn opens a PTY, forks the configured command under it, and starts
// the worker's read loop. onExit is invoked (from the read loop's
// goroutine, once) when the child exits or the PTY fails. onBell, if
// non-nil, is invoked (from the same goroutine) each time a BEL byte
// appears in the child's output; it may be nil.
func Spawn(id int64, cfg SpawnConfig, logger *log.Logger, onExit func(w *Worker), onBell func(w *Worker)) (*Worker, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Cwd
	cmd.Env = buildEnv(cfg.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(cfg.Rows), Cols: uint16(cfg.Cols)})
	if err != nil {
		return nil, fmt.Errorf("ptyworker: start: %w", err)
	}

	notifyR, notifyW, err := os.Pipe()
	if err != nil {
		ptmx.Close()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("ptyworker: notify pipe: %w", err)
	}
	notifyWRaw, err := notifyW.SyscallConn()
	if err != nil {
		ptmx.Close()
		notifyR.Close()
		notifyW.Close()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("ptyworker: notify pipe raw conn: %w", err)
	}

	w := &Worker{
		ID:         id,
		Emu:        grid.NewEmulator(cfg.Cols, cfg.Rows),
		Table:      grid.NewHighlightTable(),
		Cols:       cfg.Cols,
		Rows:       cfg.Rows,
		Cwd:        cfg.Cwd,
		Alive:      true,
		cmd:        cmd,
		pty:        ptmx,
		Pid:        cmd.Process.Pid,
		Scrollback: NewRingBuffer(DefaultScrollbackSize),
		notifyW:    notifyW,
		notifyWRaw: notifyWRaw,
		NotifyR:    notifyR,
		log:        logger,
		onExit:     onExit,
		onBell:     onBell,
		exited:     make(chan struct{}),
	}

	go w.readLoop()
	return w, nil
}

// buildEnv constructs the child's full environment: TERM defaults to
// xterm-256color unless the caller overrides it, and nothing is inherited
// from the daemon's own environment except what the caller explicitly
// passes through.
func buildEnv(requested map[string]string) []string {
	env := make(map[string]string, len(requested)+1)
	for k, v := range requested {
		env[k] = v
	}
	if _, ok := env["TERM"]; !ok {
		env["TERM"] = defaultTermFor(env)
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// defaultTermFor asks the terminfo database whether xterm-256color is
// known locally, falling back to plain xterm if the daemon's host has a
// thinner terminfo install — avoids handing a child a TERM value the
// daemon host can't even describe to itself.
func defaultTermFor(env map[string]string) string {
	const preferred = "xterm-256color"
	if _, err := terminfo.Load(preferred); err == nil {
		return preferred
	}
	return "xterm"
}

// readLoop owns the only reads of the master fd and the only mutations
// of the emulator. Besides feeding output into the emulator and scrollback,
// it drains any automatic VT response the emulator queued (device
// attributes, cursor position report) and writes it straight back to the
// master fd, ahead of and independent from keystroke input.
func (w *Worker) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := w.pty.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			w.Scrollback.Write(chunk)

			w.mu.Lock()
			w.Emu.Write(chunk)
			resp := w.Emu.TakeResponses()
			if len(resp) > 0 {
				if _, werr := w.pty.Write(resp); werr != nil && w.log != nil {
					w.log.Printf("ptyworker: pty %d auto-response write: %s", w.ID, werr)
				}
			}
			w.mu.Unlock()

			if w.onBell != nil && bytes.IndexByte(chunk, 0x07) >= 0 {
				w.onBell(w)
			}
			w.poke()
		}
		if err != nil {
			w.handleReadError(err)
			return
		}
	}
}

// poke writes a single byte to the notify pipe so the scheduler knows
// this PTY produced output. A full pipe means a poke is already pending,
// which is fine — EAGAIN is ignored.
// poke writes one byte to the notify pipe's write end without blocking.
// The pipe's read side (the owner's loop goroutine) drains it a byte at
// a time, so once it's full a wake is already queued; Control makes a
// single non-retrying write attempt so that case surfaces as EAGAIN
// instead of blocking this read-loop goroutine, and EAGAIN is ignored.
func (w *Worker) poke() {
	var writeErr error
	ctrlErr := w.notifyWRaw.Control(func(fd uintptr) {
		_, writeErr = unix.Write(int(fd), []byte{1})
	})
	if ctrlErr != nil {
		writeErr = ctrlErr
	}
	if writeErr != nil && !errors.Is(writeErr, unix.EAGAIN) && w.log != nil {
		w.log.Printf("ptyworker: pty %d notify poke: %s", w.ID, ansi.Strip(writeErr.Error()))
	}
}

func (w *Worker) handleReadError(err error) {
	w.mu.Lock()
	w.Alive = false
	w.mu.Unlock()

	state, waitErr := w.cmd.Process.Wait()
	exitCode := 0
	if waitErr == nil && state != nil {
		exitCode = state.ExitCode()
	}

	w.mu.Lock()
	w.ExitCode = exitCode
	w.ExitedAt = time.Now()
	w.mu.Unlock()

	if w.log != nil {
		w.log.Printf("pty %d exited pid=%d code=%d", w.ID, w.Pid, exitCode)
	}
	close(w.exited)
	if w.onExit != nil {
		w.onExit(w)
	}
}

// Snapshot reads the emulator's current screen under the PTY lock.
func (w *Worker) Snapshot() grid.Snapshot {
	return grid.Capture(w.Emu, w.Table)
}

// WriteInput writes keystroke/paste bytes to the master fd directly under
// the PTY lock. A busier daemon might arm an EPOLLOUT-equivalent watcher
// and queue bytes when the fd would block; this one accepts the
// occasional blocking write instead, since PTY master fds rarely back up
// for local shells.
func (w *Worker) WriteInput(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.pty.Write(data)
	return err
}

// LastKnownTitle reports the title last observed by the renderer, so it
// can detect a change without re-emitting title_changed every frame.
func (w *Worker) LastKnownTitle() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Title
}

// SetLastKnownTitle records the title the renderer just broadcast.
func (w *Worker) SetLastKnownTitle(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Title = title
}

// WorkingDir reports the directory the child was launched in.
func (w *Worker) WorkingDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Cwd
}

// IsAlive reports whether the child is still running.
func (w *Worker) IsAlive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Alive
}

// ExitInfo reports the child's exit code and exit time. ExitedAt is the
// zero time if the child is still alive.
func (w *Worker) ExitInfo() (code int, exitedAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ExitCode, w.ExitedAt
}
