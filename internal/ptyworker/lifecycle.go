package ptyworker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Resize changes the PTY's rows/cols, updates the emulator under the
// same lock the read loop uses, and issues TIOCSWINSZ followed by
// SIGWINCH to the foreground process group so curses-style programs
// redraw rather than simply clipping.
func (w *Worker) Resize(cols, rows int) error {
	w.mu.Lock()
	w.Cols = cols
	w.Rows = rows
	w.Emu.Resize(cols, rows)
	w.mu.Unlock()

	ws := &unix.Winsize{Row: uint16(rows), Col: uint16(cols)}
	if err := unix.IoctlSetWinsize(int(w.pty.Fd()), unix.TIOCSWINSZ, ws); err != nil {
		return fmt.Errorf("ptyworker: resize pty %d: %w", w.ID, err)
	}

	pgrp, err := unix.IoctlGetInt(int(w.pty.Fd()), unix.TIOCGPGRP)
	if err != nil {
		// No foreground process group yet (child hasn't exec'd far
		// enough); the winsize change alone is still applied.
		return nil
	}
	_ = unix.Kill(-pgrp, unix.SIGWINCH)
	return nil
}

// Shutdown sends SIGHUP to the child's process group and waits up to
// timeout for the read loop to observe the resulting EOF and return. If
// the deadline passes, the master fd is force-closed, which unblocks the
// read loop with an I/O error.
func (w *Worker) Shutdown(ctx context.Context, timeout time.Duration) error {
	pgid, err := unix.Getpgid(w.Pid)
	if err == nil {
		_ = unix.Kill(-pgid, unix.SIGHUP)
	} else {
		_ = unix.Kill(w.Pid, unix.SIGHUP)
	}

	select {
	case <-w.exited:
		return nil
	case <-time.After(timeout):
		_ = w.pty.Close()
		return fmt.Errorf("ptyworker: pty %d did not exit within %s, force-closed", w.ID, timeout)
	case <-ctx.Done():
		_ = w.pty.Close()
		return ctx.Err()
	}
}

// Close releases the worker's file descriptors without signaling the
// child, for use after the child has already been confirmed dead.
func (w *Worker) Close() error {
	_ = w.notifyW.Close()
	_ = w.NotifyR.Close()
	return w.pty.Close()
}
