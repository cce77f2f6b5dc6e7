// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_media acquires capture devices, keeps the live preview
// bound, records the session and finalizes it into one downloadable WAV
// artifact.
package internal_media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	internal_audio_resampler "github.com/potentialai/api/interview-api/internal/audio/resampler"
	"github.com/potentialai/pkg/commons"
)

// ArtifactPrefix is the fixed leading part of every exported session file.
const ArtifactPrefix = "potential_ai_session_"

// State is the capture lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateStopped   State = "stopped"
)

// Artifact is the finalized session recording: an immutable blob plus a
// locally-addressable path. Ownership transfers to the caller on Finalize.
type Artifact struct {
	Name      string
	Path      string
	Blob      []byte
	CreatedAt time.Time
}

// Manager owns device acquisition and the session archive.
// Lifecycle: Idle -> Capturing -> Stopped.
type Manager struct {
	mu      sync.Mutex
	logger  commons.Logger
	devices DeviceProvider

	artifactDir string

	state    State
	streamID string
	audio    AudioSource
	video    VideoSource
	recorder *sessionRecorder
	artifact *Artifact
}

// NewManager creates an idle capture manager writing artifacts to dir.
func NewManager(logger commons.Logger, devices DeviceProvider, artifactDir string) *Manager {
	resampler, _ := internal_audio_resampler.GetResampler(logger)
	return &Manager{
		logger:      logger,
		devices:     devices,
		artifactDir: artifactDir,
		state:       StateIdle,
		recorder:    newSessionRecorder(logger, resampler),
	}
}

// Acquire requests the capture devices. Audio is mandatory: a missing or
// denied microphone fails with ErrDeviceUnavailable. Video is optional:
// with no camera the session degrades to audio-only. An unsupported
// archive container fails with ErrUnsupportedFormat before any device is
// touched, so no partial capture state is ever left behind.
func (m *Manager) Acquire(ctx context.Context, constraints Constraints) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return fmt.Errorf("acquire in state %q", m.state)
	}
	if !constraints.Audio {
		return fmt.Errorf("%w: audio capture is mandatory", ErrDeviceUnavailable)
	}
	if c := constraints.Container; c != "" && c != "wav" {
		return fmt.Errorf("%w: container %q", ErrUnsupportedFormat, c)
	}

	audio, err := m.devices.OpenAudio(ctx)
	if err != nil {
		return fmt.Errorf("%w: microphone: %v", ErrDeviceUnavailable, err)
	}

	var video VideoSource
	if constraints.Video {
		video, err = m.devices.OpenVideo(ctx, constraints.Resolution)
		if err != nil {
			// Soft degrade: the interview continues audio-only.
			m.logger.Warnw("camera unavailable, continuing audio-only", "error", err)
			video = nil
		}
	}

	m.audio = audio
	m.video = video
	m.streamID = uuid.New().String()
	m.state = StateCapturing
	m.recorder.Start()

	m.logger.Infow("capture started",
		"stream", m.streamID,
		"video", video != nil,
		"resolution", constraints.Resolution,
	)
	return nil
}

// Audio returns the live microphone source, or nil before Acquire.
func (m *Manager) Audio() AudioSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

// Video returns the live camera source, or nil when running audio-only.
func (m *Manager) Video() VideoSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video
}

// State reports the capture lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StreamID identifies the current capture stream.
func (m *Manager) StreamID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamID
}

// EnsurePreview re-binds the preview sink to the live stream if it was
// replaced or reset. Idempotent and cheap; callers invoke it on every
// relevant state transition rather than trusting the sink to stay bound.
func (m *Manager) EnsurePreview(sink PreviewSink) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	state, streamID := m.state, m.streamID
	m.mu.Unlock()

	if state != StateCapturing {
		return
	}
	if sink.BoundTo() != streamID {
		m.logger.Debugw("preview watchdog re-binding stream", "stream", streamID)
		sink.Bind(streamID)
	}
}

// RecordCandidate appends captured microphone PCM16 to the archive.
func (m *Manager) RecordCandidate(pcm []byte) {
	if m.State() != StateCapturing {
		return
	}
	m.recorder.RecordCandidate(pcm)
}

// RecordAgent appends decoded agent PCM16 to the archive.
func (m *Manager) RecordAgent(pcm []byte) {
	if m.State() != StateCapturing {
		return
	}
	m.recorder.RecordAgent(pcm)
}

// Finalize stops capture, renders the archive into one immutable WAV blob
// on disk and returns the artifact. Safe to call multiple times: repeat
// calls are no-ops returning the previously produced artifact. A failed
// render keeps the recorded session intact, so a later call retries until
// an artifact exists.
func (m *Manager) Finalize(ctx context.Context) (*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.artifact != nil {
		return m.artifact, nil
	}
	switch m.state {
	case StateCapturing:
		m.releaseLocked()
		m.state = StateStopped
	case StateStopped:
		// Retry after a failed render. Devices are already released.
	default:
		return nil, fmt.Errorf("finalize in state %q", m.state)
	}

	pcm, err := m.recorder.Mixdown()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	blob := createWAVFile(pcm)

	name := fmt.Sprintf("%s%d.wav", ArtifactPrefix, time.Now().UnixMilli())
	path := filepath.Join(m.artifactDir, name)
	if err := os.MkdirAll(m.artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	m.artifact = &Artifact{
		Name:      name,
		Path:      path,
		Blob:      blob,
		CreatedAt: time.Now(),
	}
	m.logger.Infow("recording finalized", "artifact", path, "bytes", len(blob))
	return m.artifact, nil
}

// Release closes the capture devices without producing an artifact. Used
// on failed session starts; idempotent.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
	if m.state == StateCapturing {
		m.state = StateStopped
	}
}

func (m *Manager) releaseLocked() {
	if m.audio != nil {
		if err := m.audio.Close(); err != nil {
			m.logger.Warnw("closing audio source", "error", err)
		}
		m.audio = nil
	}
	if m.video != nil {
		if err := m.video.Close(); err != nil {
			m.logger.Warnw("closing video source", "error", err)
		}
		m.video = nil
	}
}
