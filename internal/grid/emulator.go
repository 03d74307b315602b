// Package grid wraps an external VT emulation library and builds a
// style/highlight data model on top of it.
//
// The emulator contract is satisfied by github.com/hinshun/vt10x: Write
// feeds PTY bytes in, Cell/Cursor/Size read the screen back out.
package grid

import (
	"bytes"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/hinshun/vt10x"
)

// Emulator is the narrow surface this package needs from a VT emulation
// library. It exists so internal/ptyworker and internal/grid depend on an
// interface, not directly on vt10x's concrete type — useful for tests that
// fake PTY output without a real terminal.
type Emulator interface {
	Write(p []byte) (int, error)
	Resize(cols, rows int)
	Size() (cols, rows int)
	Cell(x, y int) vt10x.Glyph
	Cursor() vt10x.Cursor
	CursorVisible() bool
	Title() string
	Lock()
	Unlock()

	// TakeResponses drains and returns any automatic VT responses queued by
	// the last Write — e.g. a device attributes or cursor position report
	// the application queried for. The caller writes these bytes straight
	// back to the PTY master fd, bypassing keystroke input entirely.
	TakeResponses() []byte
}

// NewEmulator constructs the vt10x-backed emulator for a PTY with the
// given initial size.
func NewEmulator(cols, rows int) Emulator {
	return &emulator{Terminal: vt10x.New(vt10x.WithSize(cols, rows))}
}

// emulator wraps vt10x.Terminal to additionally recognize the VT queries a
// full-screen application uses to probe terminal capabilities — primary
// device attributes ("ESC [ c") and cursor position reports ("ESC [ 6 n")
// — and queue the matching response instead of leaving the app to time
// out waiting on a terminal that never answers.
type emulator struct {
	vt10x.Terminal

	mu   sync.Mutex
	resp []byte
}

func (e *emulator) Write(p []byte) (int, error) {
	n, err := e.Terminal.Write(p)

	e.Terminal.Lock()
	cur := e.Terminal.Cursor()
	e.Terminal.Unlock()

	e.observe(p, cur)
	return n, err
}

// observe scans the bytes just fed to the terminal for query sequences it
// owes a synchronous answer, queuing the response for TakeResponses.
func (e *emulator) observe(p []byte, cur vt10x.Cursor) {
	var queued []byte
	if bytes.Contains(p, []byte(ansi.RequestPrimaryDeviceAttributes)) {
		queued = append(queued, ansi.PrimaryDeviceAttributes(1, 2)...)
	}
	if bytes.Contains(p, []byte(ansi.RequestCursorPositionReport)) {
		queued = append(queued, ansi.CursorPositionReport(cur.Y+1, cur.X+1)...)
	}
	if len(queued) == 0 {
		return
	}
	e.mu.Lock()
	e.resp = append(e.resp, queued...)
	e.mu.Unlock()
}

func (e *emulator) TakeResponses() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.resp) == 0 {
		return nil
	}
	out := e.resp
	e.resp = nil
	return out
}
