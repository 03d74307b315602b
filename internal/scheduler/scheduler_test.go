package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/chriswa/ptymuxd/internal/loop"
)

func TestNotify_FirstCallRendersImmediately(t *testing.T) {
	l := loop.New(8)
	go l.Run()
	defer l.Close()

	var mu sync.Mutex
	var rendered []int64
	done := make(chan struct{}, 1)

	sched := New(l, 50*time.Millisecond, func(ptyID int64) {
		mu.Lock()
		rendered = append(rendered, ptyID)
		mu.Unlock()
		done <- struct{}{}
	})

	l.Post(func() { sched.Notify(1) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for render")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(rendered) != 1 || rendered[0] != 1 {
		t.Fatalf("expected one render of pty 1, got %v", rendered)
	}
}

func TestNotify_CoalescesBurstIntoOneDeferredRender(t *testing.T) {
	l := loop.New(8)
	go l.Run()
	defer l.Close()

	var mu sync.Mutex
	count := 0
	renders := make(chan struct{}, 16)

	sched := New(l, 40*time.Millisecond, func(ptyID int64) {
		mu.Lock()
		count++
		mu.Unlock()
		renders <- struct{}{}
	})

	l.Post(func() { sched.Notify(1) })
	<-renders // first notify renders immediately

	for i := 0; i < 20; i++ {
		l.Post(func() { sched.Notify(1) })
	}

	select {
	case <-renders:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for coalesced render")
	}

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("expected exactly 2 renders (immediate + one coalesced), got %d", count)
	}
}

func TestForget_CancelsPendingTimer(t *testing.T) {
	l := loop.New(8)
	go l.Run()
	defer l.Close()

	rendered := make(chan int64, 8)
	sched := New(l, 50*time.Millisecond, func(ptyID int64) { rendered <- ptyID })

	l.Post(func() { sched.Notify(1) })
	<-rendered // consume the immediate render

	l.Post(func() { sched.Notify(1) }) // arms a deferred timer
	l.Post(func() { sched.Forget(1) })

	select {
	case id := <-rendered:
		t.Fatalf("expected no further render after Forget, got pty %d", id)
	case <-time.After(150 * time.Millisecond):
	}
}
