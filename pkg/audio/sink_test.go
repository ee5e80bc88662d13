package audio

import (
	"testing"
	"time"
)

func TestBufferSinkRecordsChunks(t *testing.T) {
	s := NewBufferSink()
	if err := s.Open(44100, 1, 16, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}

	chunk := []int16{1, 2, 3}
	if err := s.Submit(chunk); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	chunk[0] = 99 // stored chunks must be copies

	chunks := s.Chunks()
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0][0] != 1 {
		t.Errorf("stored chunk aliased the caller's slice")
	}
}

func TestBufferSinkLifecycle(t *testing.T) {
	s := NewBufferSink()
	if err := s.Submit([]int16{1}); err == nil {
		t.Error("Submit before Open should fail")
	}
	if err := s.Open(44100, 1, 16, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Open(44100, 1, 16, nil); err == nil {
		t.Error("second Open should fail")
	}

	s.Reset()
	s.Reset()
	if got := s.Resets(); got != 2 {
		t.Errorf("Resets() = %d, want 2", got)
	}

	if err := s.SetGain(0.25); err != nil {
		t.Fatalf("SetGain: %v", err)
	}
	if got := s.Gain(); got != 0.25 {
		t.Errorf("Gain() = %v, want 0.25", got)
	}
}

func TestBufferSinkComplete(t *testing.T) {
	s := NewBufferSink()
	var count int
	if err := s.Open(44100, 1, 16, func() { count++ }); err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Complete(3)
	if count != 3 {
		t.Errorf("got %d completions, want 3", count)
	}
}

func TestNullSinkPacesCompletions(t *testing.T) {
	s := NewNullSink()
	done := make(chan struct{}, 8)
	if err := s.Open(1000, 1, 16, func() { done <- struct{}{} }); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// 10 samples at 1kHz: completion due after ~10ms.
	if err := s.Submit(make([]int16, 10)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

func TestNullSinkResetDropsQueued(t *testing.T) {
	s := NewNullSink()
	done := make(chan struct{}, 8)
	if err := s.Open(100, 1, 16, func() { done <- struct{}{} }); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// 500ms per chunk; queue several, then drop them before they play out.
	for i := 0; i < 4; i++ {
		if err := s.Submit(make([]int16, 50)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	s.Reset()

	// The chunk already in flight may still complete; the rest must not.
	time.Sleep(1200 * time.Millisecond)
	if got := len(done); got > 1 {
		t.Errorf("got %d completions after Reset, want at most 1", got)
	}
}

func TestNullSinkLifecycle(t *testing.T) {
	s := NewNullSink()
	if err := s.Submit([]int16{1}); err == nil {
		t.Error("Submit before Open should fail")
	}
	if err := s.Open(44100, 1, 16, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Open(44100, 1, 16, nil); err == nil {
		t.Error("second Open should fail")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Submit([]int16{1}); err == nil {
		t.Error("Submit after Close should fail")
	}
}
