// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_playback

import (
	"sync"
	"testing"
	"time"

	internal_audio "github.com/potentialai/api/interview-api/internal/audio"
	"github.com/potentialai/pkg/commons"
)

func newTestScheduler(t *testing.T, onDrain func()) *Scheduler {
	t.Helper()
	logger, err := commons.NewApplicationLogger(commons.Name("test-playback"))
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return NewScheduler(logger, nil, onDrain)
}

// chunkOf returns a 16kHz mono chunk lasting the given duration.
func chunkOf(d time.Duration) internal_audio.Chunk {
	byteLen := int(d.Seconds() * float64(internal_audio.CAPTURE_AUDIO_CONFIG.BytesPerSecond()))
	byteLen -= byteLen % 2
	return internal_audio.Chunk{
		PCM16:      make([]byte, byteLen),
		SampleRate: internal_audio.CAPTURE_AUDIO_CONFIG.SampleRate,
		Channels:   internal_audio.CAPTURE_AUDIO_CONFIG.Channels,
	}
}

type recordingSink struct {
	mu      sync.Mutex
	played  []*Handle
	stopped []*Handle
}

func (r *recordingSink) Play(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, h)
}

func (r *recordingSink) Stop(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, h)
}

func TestEnqueueSchedulesContiguously(t *testing.T) {
	s := newTestScheduler(t, nil)

	// Frozen clock: successive enqueues must stack back to back.
	s.clock = func() time.Duration { return 0 }

	durations := []time.Duration{100 * time.Millisecond, 40 * time.Millisecond, 250 * time.Millisecond}
	var handles []*Handle
	for _, d := range durations {
		handles = append(handles, s.Enqueue(chunkOf(d)))
	}

	var expectedStart time.Duration
	for i, h := range handles {
		if h.StartAt != expectedStart {
			t.Errorf("buffer %d: expected start %v, got %v", i, expectedStart, h.StartAt)
		}
		if i > 0 && h.StartAt < handles[i-1].StartAt {
			t.Errorf("buffer %d: start offsets must be non-decreasing", i)
		}
		expectedStart += h.Duration()
	}
	if s.ActiveCount() != len(durations) {
		t.Fatalf("expected %d active handles, got %d", len(durations), s.ActiveCount())
	}
}

func TestEnqueueAfterRealTimeGap(t *testing.T) {
	s := newTestScheduler(t, nil)

	now := time.Duration(0)
	s.clock = func() time.Duration { return now }

	first := s.Enqueue(chunkOf(20 * time.Millisecond))
	if first.StartAt != 0 {
		t.Fatalf("first buffer should start at 0, got %v", first.StartAt)
	}

	// Clock runs past the end of the first buffer: the next start must
	// follow the clock, not the stale offset.
	now = 500 * time.Millisecond
	second := s.Enqueue(chunkOf(20 * time.Millisecond))
	if second.StartAt != 500*time.Millisecond {
		t.Fatalf("expected start at clock time after a gap, got %v", second.StartAt)
	}
}

func TestInterruptClearsHandlesAndResetsSchedule(t *testing.T) {
	sink := &recordingSink{}
	logger, _ := commons.NewApplicationLogger()
	s := NewScheduler(logger, sink, nil)

	now := time.Duration(0)
	s.clock = func() time.Duration { return now }

	for i := 0; i < 3; i++ {
		s.Enqueue(chunkOf(time.Second))
	}
	if s.ActiveCount() != 3 {
		t.Fatalf("expected 3 active handles, got %d", s.ActiveCount())
	}

	now = 40 * time.Millisecond
	s.Interrupt()

	if s.ActiveCount() != 0 {
		t.Fatalf("interrupt must empty the active set, got %d", s.ActiveCount())
	}
	sink.mu.Lock()
	stopped := len(sink.stopped)
	sink.mu.Unlock()
	if stopped != 3 {
		t.Fatalf("expected 3 sink stops, got %d", stopped)
	}

	// Subsequent enqueues schedule relative to current time, not stale offsets.
	h := s.Enqueue(chunkOf(20 * time.Millisecond))
	if h.StartAt != 40*time.Millisecond {
		t.Fatalf("post-interrupt start should equal clock time, got %v", h.StartAt)
	}
}

func TestInterruptIsIdempotent(t *testing.T) {
	drains := 0
	s := newTestScheduler(t, func() { drains++ })

	s.Interrupt()
	s.Interrupt()
	if s.ActiveCount() != 0 {
		t.Fatal("interrupt on empty scheduler must stay empty")
	}
	// Each interrupt still signals speaking=false; that is harmless and
	// matches the always-signal contract.
	if drains != 2 {
		t.Fatalf("expected 2 drain signals, got %d", drains)
	}
}

func TestDrainSignalsOnNaturalCompletion(t *testing.T) {
	drained := make(chan struct{}, 1)
	s := newTestScheduler(t, func() {
		select {
		case drained <- struct{}{}:
		default:
		}
	})

	s.Enqueue(chunkOf(10 * time.Millisecond))

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never signalled drain after playback window elapsed")
	}
	if s.ActiveCount() != 0 {
		t.Fatalf("handle did not self-deregister, %d active", s.ActiveCount())
	}
}
