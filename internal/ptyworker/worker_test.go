package ptyworker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chriswa/ptymuxd/internal/grid"
)

func spawnEcho(t *testing.T, cfg SpawnConfig, onExit func(w *Worker)) *Worker {
	t.Helper()
	w, err := Spawn(1, cfg, nil, onExit, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return w
}

func TestSpawn_RunsCommandAndCapturesOutput(t *testing.T) {
	exited := make(chan struct{})
	w := spawnEcho(t, SpawnConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo hello-world"},
		Cwd:     "/",
		Rows:    24,
		Cols:    80,
	}, func(*Worker) { close(exited) })
	defer w.Close()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit in time")
	}

	code, exitedAt := w.ExitInfo()
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if exitedAt.IsZero() {
		t.Fatal("expected ExitedAt to be set")
	}
	if w.IsAlive() {
		t.Fatal("expected worker to report not alive after exit")
	}

	snap := w.Snapshot()
	found := false
	for _, row := range snap.Cells {
		if strings.Contains(rowText(row), "hello-world") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'hello-world' somewhere in the captured grid, got %+v", snap.Cells)
	}
}

func rowText(cells []grid.Cell) string {
	var sb strings.Builder
	for _, c := range cells {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func TestWriteInput_DeliversBytesToChild(t *testing.T) {
	exited := make(chan struct{})
	w := spawnEcho(t, SpawnConfig{
		Command: "/bin/cat",
		Cwd:     "/",
		Rows:    24,
		Cols:    80,
	}, func(*Worker) { close(exited) })
	defer w.Close()

	if err := w.WriteInput([]byte("abc\n")); err != nil {
		t.Fatalf("WriteInput: %v", err)
	}
	if err := w.WriteInput([]byte{4}); err != nil { // EOF (Ctrl-D)
		t.Fatalf("WriteInput EOF: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("cat did not exit after EOF")
	}
}

func TestResize_UpdatesWorkerDimensions(t *testing.T) {
	w := spawnEcho(t, SpawnConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 2"},
		Cwd:     "/",
		Rows:    24,
		Cols:    80,
	}, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx, 200*time.Millisecond)
		w.Close()
	}()

	if err := w.Resize(100, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w.Cols != 100 || w.Rows != 40 {
		t.Fatalf("expected 100x40, got %dx%d", w.Cols, w.Rows)
	}
}

func TestSpawn_BellByteTriggersOnBell(t *testing.T) {
	exited := make(chan struct{})
	bells := make(chan struct{}, 4)
	w, err := Spawn(1, SpawnConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "printf '\\a'"},
		Cwd:     "/",
		Rows:    24,
		Cols:    80,
	}, nil, func(*Worker) { close(exited) }, func(*Worker) {
		select {
		case bells <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer w.Close()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit in time")
	}

	select {
	case <-bells:
	default:
		t.Fatal("expected onBell to fire for a BEL byte in the child's output")
	}
}

func TestShutdown_SendsHangupAndWaitsForExit(t *testing.T) {
	w := spawnEcho(t, SpawnConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
		Cwd:     "/",
		Rows:    24,
		Cols:    80,
	}, nil)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Shutdown(ctx, time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if w.IsAlive() {
		t.Fatal("expected worker to be dead after Shutdown")
	}
}
