package ptyworker

import (
	"bytes"
	"testing"
)

func TestRingBuffer_UnderSize(t *testing.T) {
	r := NewRingBuffer(16)
	r.Write([]byte("hello"))
	if got := r.Contents(); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestRingBuffer_Wrap(t *testing.T) {
	r := NewRingBuffer(5)
	r.Write([]byte("abcde"))
	r.Write([]byte("fg"))
	if got := r.Contents(); !bytes.Equal(got, []byte("cdefg")) {
		t.Fatalf("expected 'cdefg', got %q", got)
	}
}

func TestIncompleteUTF8Tail(t *testing.T) {
	full := []byte("hellé") // 'é' is 2 bytes
	if n := incompleteUTF8Tail(full); n != 0 {
		t.Fatalf("complete string should report 0, got %d", n)
	}
	truncated := full[:len(full)-1] // cuts 'é' in half
	if n := incompleteUTF8Tail(truncated); n != 1 {
		t.Fatalf("expected 1 incomplete trailing byte, got %d", n)
	}
}
