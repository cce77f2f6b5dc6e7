// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_session holds the aggregate state of one interview
// attempt. Exactly one State exists per session; each field is mutated
// only by its owning component (transport → transcript/turn, integrity →
// trust/flags, media → artifact) and the aggregate becomes immutable once
// it reaches Archived.
package internal_session

import (
	"sync"
	"time"
)

// Phase is the single source of truth for component gating.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseConnecting Phase = "connecting"
	PhaseActive     Phase = "active"
	PhaseConcluding Phase = "concluding"
	PhaseArchived   Phase = "archived"
	PhaseErrored    Phase = "errored"
)

// Speaker tags a transcript entry.
type Speaker string

const (
	SpeakerAgent     Speaker = "agent"
	SpeakerCandidate Speaker = "candidate"
)

// FlagKind classifies an integrity event.
type FlagKind string

const (
	FlagFocusLost  FlagKind = "FOCUS_LOST"
	FlagTabSwitch  FlagKind = "TAB_SWITCH"
	FlagInactivity FlagKind = "INACTIVITY"
)

// IntegrityFlag is one audited integrity event. Append-only during Active.
type IntegrityFlag struct {
	Kind       FlagKind
	OccurredAt time.Time
}

// TranscriptEntry is one coalesced turn fragment.
type TranscriptEntry struct {
	Speaker Speaker
	Text    string
}

// TurnState reports who holds the conversational floor. Derived signals:
// speaking tracks the playback scheduler's active handles, thinking the
// last inbound transcription; speaking=true forces thinking=false.
type TurnState struct {
	Thinking bool
	Speaking bool
}

const initialTrustScore = 100

// State is the aggregate root for one interview attempt.
type State struct {
	mu sync.Mutex

	id         string
	phase      Phase
	trustScore int
	flags      []IntegrityFlag
	transcript []TranscriptEntry
	turn       TurnState
}

// NewState creates a fresh NotStarted session aggregate.
func NewState(id string) *State {
	return &State{
		id:         id,
		phase:      PhaseNotStarted,
		trustScore: initialTrustScore,
	}
}

// ID returns the session identifier.
func (s *State) ID() string { return s.id }

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase transitions the session phase. Archived is terminal: any
// further transition is ignored so the aggregate stays immutable.
func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseArchived {
		return
	}
	s.phase = p
}

// TrustScore returns the current integrity score.
func (s *State) TrustScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trustScore
}

// ApplyPenalty decays the trust score by the given weight, clamped at 0,
// and appends the audited flag. Only effective while the session is
// Active; the score never regenerates.
func (s *State) ApplyPenalty(kind FlagKind, penalty int, at time.Time) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return s.trustScore, false
	}
	s.trustScore -= penalty
	if s.trustScore < 0 {
		s.trustScore = 0
	}
	s.flags = append(s.flags, IntegrityFlag{Kind: kind, OccurredAt: at})
	return s.trustScore, true
}

// Flags returns a copy of the ordered integrity flag log.
func (s *State) Flags() []IntegrityFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IntegrityFlag, len(s.flags))
	copy(out, s.flags)
	return out
}

// AppendTranscript folds a streamed transcription fragment into the
// transcript. Consecutive fragments from the same speaker extend the last
// entry; a speaker change starts a new one. Fragments must be applied in
// arrival order.
func (s *State) AppendTranscript(speaker Speaker, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseArchived {
		return
	}
	if n := len(s.transcript); n > 0 && s.transcript[n-1].Speaker == speaker {
		s.transcript[n-1].Text += text
		return
	}
	s.transcript = append(s.transcript, TranscriptEntry{Speaker: speaker, Text: text})
}

// Transcript returns a copy of the coalesced transcript.
func (s *State) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// SetSpeaking flips the speaking signal; audio beginning also clears
// thinking, because the agent cannot be composing while talking.
func (s *State) SetSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseArchived {
		return
	}
	s.turn.Speaking = speaking
	if speaking {
		s.turn.Thinking = false
	}
}

// SetThinking flips the thinking signal.
func (s *State) SetThinking(thinking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseArchived {
		return
	}
	s.turn.Thinking = thinking
}

// Turn returns the current turn state.
func (s *State) Turn() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}
