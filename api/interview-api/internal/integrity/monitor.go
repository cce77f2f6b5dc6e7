// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_integrity decays the session trust score from observed
// environment signals (focus loss, tab switches, inactivity) and keeps an
// auditable flag log. It runs beside the transport, never in its path:
// the only coupling is an advisory out-of-band notice.
package internal_integrity

import (
	"fmt"
	"sync"
	"time"

	internal_session "github.com/potentialai/api/interview-api/internal/session"
	"github.com/potentialai/pkg/commons"
)

const (
	// Penalty weights. Tab switches weigh more than plain focus loss;
	// inactivity weighs least.
	TabSwitchPenalty  = 15
	FocusLostPenalty  = 10
	InactivityPenalty = 5

	// AlertDuration is how long a transient integrity alert stays visible.
	AlertDuration = 3 * time.Second

	// InactivityThreshold is the silent window before an inactivity
	// penalty fires.
	InactivityThreshold = 30 * time.Second
)

// Notifier delivers an advisory out-of-band notice to the remote agent.
// Delivery is best effort; a dropped notice is non-critical.
type Notifier interface {
	SendSystemNotice(text string) error
}

// Alert is a transient UI signal raised on a penalty and auto-cleared
// after AlertDuration.
type Alert struct {
	Kind internal_session.FlagKind
	At   time.Time
}

// Monitor accumulates integrity penalties into the session state while the
// session phase is Active.
type Monitor struct {
	mu     sync.Mutex
	logger commons.Logger

	state    *internal_session.State
	notifier Notifier
	onAlert  func(Alert)

	// clock and the timer windows are injectable for testing.
	clock           func() time.Time
	inactivityAfter time.Duration
	alertAfter      time.Duration

	alertActive bool
	alertTimer  *time.Timer

	inactivityTimer *time.Timer
	stopped         bool
}

// NewMonitor creates a monitor bound to the session aggregate. notifier
// and onAlert may be nil.
func NewMonitor(logger commons.Logger, state *internal_session.State, notifier Notifier, onAlert func(Alert)) *Monitor {
	return &Monitor{
		logger:          logger,
		state:           state,
		notifier:        notifier,
		onAlert:         onAlert,
		clock:           time.Now,
		inactivityAfter: InactivityThreshold,
		alertAfter:      AlertDuration,
	}
}

// Start arms the inactivity watchdog. Call once when the session becomes
// Active.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = false
	m.armInactivityLocked()
}

// Stop disarms all timers. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
		m.inactivityTimer = nil
	}
	if m.alertTimer != nil {
		m.alertTimer.Stop()
		m.alertTimer = nil
	}
	m.alertActive = false
}

// OnFocusLost handles a window blur signal.
func (m *Monitor) OnFocusLost() {
	m.penalize(internal_session.FlagFocusLost, FocusLostPenalty)
}

// OnTabSwitch handles a visibility-hidden signal.
func (m *Monitor) OnTabSwitch() {
	m.penalize(internal_session.FlagTabSwitch, TabSwitchPenalty)
}

// OnActivity records a pointer or keyboard signal, pushing the inactivity
// window forward.
func (m *Monitor) OnActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.armInactivityLocked()
}

// AlertActive reports whether a transient integrity alert is showing.
func (m *Monitor) AlertActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alertActive
}

// armInactivityLocked resets the inactivity watchdog to a full window.
func (m *Monitor) armInactivityLocked() {
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
	}
	m.inactivityTimer = time.AfterFunc(m.inactivityAfter, m.onInactivity)
}

// onInactivity fires one penalty for the idle span, then re-arms so a
// single idle stretch shorter than the window is not penalized twice.
func (m *Monitor) onInactivity() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.armInactivityLocked()
	m.mu.Unlock()

	m.penalize(internal_session.FlagInactivity, InactivityPenalty)
}

func (m *Monitor) penalize(kind internal_session.FlagKind, penalty int) {
	now := m.clock()
	score, applied := m.state.ApplyPenalty(kind, penalty, now)
	if !applied {
		return
	}

	m.logger.Warnw("integrity penalty applied",
		"kind", kind,
		"penalty", penalty,
		"trustScore", score,
	)

	m.raiseAlert(Alert{Kind: kind, At: now})

	if m.notifier != nil {
		notice := fmt.Sprintf("[INTEGRITY] %s detected; trust score is now %d.", kind, score)
		if err := m.notifier.SendSystemNotice(notice); err != nil {
			// Advisory only; loss of a notice never blocks the session.
			m.logger.Debugw("integrity notice dropped", "error", err)
		}
	}
}

// raiseAlert shows the transient alert and schedules its auto-clear.
func (m *Monitor) raiseAlert(alert Alert) {
	m.mu.Lock()
	m.alertActive = true
	if m.alertTimer != nil {
		m.alertTimer.Stop()
	}
	m.alertTimer = time.AfterFunc(m.alertAfter, func() {
		m.mu.Lock()
		m.alertActive = false
		m.mu.Unlock()
	})
	onAlert := m.onAlert
	m.mu.Unlock()

	if onAlert != nil {
		onAlert(alert)
	}
}
