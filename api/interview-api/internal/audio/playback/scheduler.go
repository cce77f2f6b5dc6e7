// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_playback schedules decoded agent audio for gapless,
// strictly-ordered output and flushes it immediately on barge-in.
package internal_playback

import (
	"sync"
	"time"

	"github.com/google/uuid"
	internal_audio "github.com/potentialai/api/interview-api/internal/audio"
	"github.com/potentialai/pkg/commons"
)

// Sink receives scheduled buffers. Implementations bind to the actual audio
// output device; the scheduler is the only component that starts or stops a
// handle on the sink.
type Sink interface {
	// Play begins output of the handle's chunk at its scheduled start.
	Play(h *Handle)
	// Stop silences the handle immediately.
	Stop(h *Handle)
}

// Handle is one scheduled outgoing buffer. Owned by the scheduler.
type Handle struct {
	ID      string
	Chunk   internal_audio.Chunk
	StartAt time.Duration // audio-clock offset of the scheduled start

	timer *time.Timer
}

// Duration returns the playback time of the handle's chunk.
func (h *Handle) Duration() time.Duration { return h.Chunk.Duration() }

// Scheduler guarantees that enqueued chunks play back to back despite
// irregular network arrival: each buffer starts at
// max(nextStart, clock now) and advances nextStart by its duration.
//
// The active-handle set doubles as the speaking signal — when it drains
// (naturally or via Interrupt) onDrain fires so turn state can derive
// speaking=false from playback instead of a free-floating flag.
type Scheduler struct {
	mu     sync.Mutex
	logger commons.Logger

	sink    Sink
	onDrain func()

	// clock is the monotonic audio clock; injectable for testing.
	clock func() time.Duration
	epoch time.Time

	nextStart time.Duration
	handles   map[string]*Handle
}

// NewScheduler creates a scheduler. sink and onDrain may be nil.
func NewScheduler(logger commons.Logger, sink Sink, onDrain func()) *Scheduler {
	s := &Scheduler{
		logger:  logger,
		sink:    sink,
		onDrain: onDrain,
		epoch:   time.Now(),
		handles: make(map[string]*Handle),
	}
	s.clock = func() time.Duration { return time.Since(s.epoch) }
	return s
}

// Enqueue schedules a chunk for gapless sequential output and returns its
// handle. The handle deregisters itself when its playback window elapses.
// Enqueue must be called in chunk arrival order.
func (s *Scheduler) Enqueue(chunk internal_audio.Chunk) *Handle {
	s.mu.Lock()
	now := s.clock()
	startAt := s.nextStart
	if now > startAt {
		startAt = now
	}

	h := &Handle{
		ID:      uuid.New().String(),
		Chunk:   chunk,
		StartAt: startAt,
	}
	s.nextStart = startAt + chunk.Duration()
	s.handles[h.ID] = h

	// Self-deregistration at the end of the scheduled window.
	h.timer = time.AfterFunc(s.nextStart-now, func() { s.complete(h.ID) })
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.Play(h)
	}
	return h
}

// complete removes a finished handle; the last one out signals the drain.
func (s *Scheduler) complete(id string) {
	s.mu.Lock()
	if _, ok := s.handles[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.handles, id)
	drained := len(s.handles) == 0
	s.mu.Unlock()

	if drained && s.onDrain != nil {
		s.onDrain()
	}
}

// Interrupt stops every active handle, clears the set and resets the
// schedule to the current clock so the next Enqueue plays immediately.
// Idempotent and safe with no active playback.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := make([]*Handle, 0, len(s.handles))
	for id, h := range s.handles {
		if h.timer != nil {
			h.timer.Stop()
		}
		stopped = append(stopped, h)
		delete(s.handles, id)
	}
	s.nextStart = s.clock()
	sink := s.sink
	s.mu.Unlock()

	for _, h := range stopped {
		if sink != nil {
			sink.Stop(h)
		}
	}
	if len(stopped) > 0 {
		s.logger.Debugw("playback interrupted", "flushed", len(stopped))
	}
	if s.onDrain != nil {
		s.onDrain()
	}
}

// ActiveCount reports the number of scheduled-but-unfinished handles.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
