// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_interview runs one AI screening interview end to end:
// device acquisition, the live agent session, gapless playback, integrity
// monitoring, dual-track recording and the archived outcome record.
package internal_interview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	internal_audio "github.com/potentialai/api/interview-api/internal/audio"
	internal_codec "github.com/potentialai/api/interview-api/internal/audio/codec"
	internal_playback "github.com/potentialai/api/interview-api/internal/audio/playback"
	internal_evaluate "github.com/potentialai/api/interview-api/internal/evaluate"
	internal_integrity "github.com/potentialai/api/interview-api/internal/integrity"
	internal_media "github.com/potentialai/api/interview-api/internal/media"
	internal_record "github.com/potentialai/api/interview-api/internal/record"
	internal_session "github.com/potentialai/api/interview-api/internal/session"
	internal_transport "github.com/potentialai/api/interview-api/internal/transport"
	"github.com/potentialai/pkg/commons"
	"github.com/potentialai/pkg/utils"
)

// Config wires the orchestrator to its environment.
type Config struct {
	AgentURL     string
	AgentHeaders map[string]string
	ArtifactDir  string
}

// Dependencies are the injectable collaborators. Store and Evaluator may be
// nil; conclusion then skips persistence or scoring respectively.
type Dependencies struct {
	Devices   internal_media.DeviceProvider
	Sink      internal_playback.Sink
	Evaluator internal_evaluate.Evaluator
	Store     internal_record.Store
}

// Orchestrator owns one interview session from device acquisition through
// the archived record.
type Orchestrator struct {
	logger    commons.Logger
	config    Config
	candidate Candidate
	job       Job
	deps      Dependencies

	state *internal_session.State
	media *internal_media.Manager

	mu        sync.Mutex
	scheduler *internal_playback.Scheduler
	transport *internal_transport.Session
	monitor   *internal_integrity.Monitor
	cancel    context.CancelFunc
	startedAt time.Time
	concluded bool
	record    *internal_record.InterviewRecord
}

// NewOrchestrator creates an orchestrator for one candidate and role.
func NewOrchestrator(logger commons.Logger, config Config, candidate Candidate, job Job, deps Dependencies) *Orchestrator {
	state := internal_session.NewState(uuid.NewString())
	return &Orchestrator{
		logger:    logger,
		config:    config,
		candidate: candidate,
		job:       job,
		deps:      deps,
		state:     state,
		media:     internal_media.NewManager(logger, deps.Devices, config.ArtifactDir),
	}
}

// State exposes the live session aggregate.
func (o *Orchestrator) State() *internal_session.State { return o.state }

// Media exposes the capture manager, for preview binding.
func (o *Orchestrator) Media() *internal_media.Manager { return o.media }

// Monitor exposes the integrity monitor once the session started.
func (o *Orchestrator) Monitor() *internal_integrity.Monitor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.monitor
}

// Record returns the archived outcome, nil before conclusion.
func (o *Orchestrator) Record() *internal_record.InterviewRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record
}

// SendSystemNotice forwards advisory notices to the agent. Notices raised
// before the live session exists are dropped, matching the transport's own
// not-open behavior.
func (o *Orchestrator) SendSystemNotice(text string) error {
	o.mu.Lock()
	transport := o.transport
	o.mu.Unlock()
	if transport == nil {
		o.logger.Debugw("system notice dropped, no live session")
		return nil
	}
	return transport.SendSystemNotice(text)
}

// Start acquires devices, connects the live session and begins streaming.
// Any failure leaves the session in Errored with all devices released.
func (o *Orchestrator) Start(ctx context.Context, constraints internal_media.Constraints) error {
	start := time.Now()
	o.state.SetPhase(internal_session.PhaseConnecting)

	scheduler := internal_playback.NewScheduler(o.logger, o.deps.Sink, func() {
		o.state.SetSpeaking(false)
	})

	monitor := internal_integrity.NewMonitor(o.logger, o.state, o, nil)

	session := internal_transport.NewSession(o.logger, internal_transport.Config{
		URL:               o.config.AgentURL,
		Headers:           o.config.AgentHeaders,
		SessionID:         o.state.ID(),
		SystemInstruction: SystemInstruction(o.candidate, o.job),
		Greeting:          Greeting(o.candidate, o.job),
	}, o)

	streamCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	o.scheduler = scheduler
	o.monitor = monitor
	o.transport = session
	o.cancel = cancel
	o.startedAt = time.Now()
	o.mu.Unlock()

	// Devices and the live connection come up in parallel; a failure on
	// either side tears both down.
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := o.media.Acquire(gCtx, constraints); err != nil {
			return fmt.Errorf("acquire media: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := session.Connect(gCtx); err != nil {
			return fmt.Errorf("connect live session: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		cancel()
		session.Close()
		o.media.Release()
		o.state.SetPhase(internal_session.PhaseErrored)
		return err
	}

	o.state.SetPhase(internal_session.PhaseActive)
	monitor.Start()

	utils.Go(streamCtx, func() {
		err := session.StreamAudio(streamCtx, o.media.Audio(), func(samples []float32) {
			o.media.RecordCandidate(internal_codec.PCM16FromFloat32(samples))
		})
		if err != nil && streamCtx.Err() == nil {
			o.logger.Warnw("candidate audio stream ended", "error", err)
		}
	})
	if video := o.media.Video(); video != nil {
		utils.Go(streamCtx, func() {
			if err := session.StreamVideo(streamCtx, video); err != nil && streamCtx.Err() == nil {
				o.logger.Warnw("video stream ended", "error", err)
			}
		})
	}

	o.logger.Infow("interview started",
		"sessionId", o.state.ID(),
		"candidateId", o.candidate.ID,
		"jobTitle", o.job.Title,
	)
	o.logger.Benchmark("Orchestrator.Start", time.Since(start))
	return nil
}

// OnAgentAudio records and schedules one agent chunk.
func (o *Orchestrator) OnAgentAudio(chunk internal_audio.Chunk) {
	o.mu.Lock()
	scheduler := o.scheduler
	o.mu.Unlock()
	if scheduler == nil {
		return
	}
	o.state.SetSpeaking(true)
	o.media.RecordAgent(chunk.PCM16)
	scheduler.Enqueue(chunk)
}

// OnInputTranscription appends a candidate delta; hearing the candidate is
// also an activity signal.
func (o *Orchestrator) OnInputTranscription(text string) {
	o.state.AppendTranscript(internal_session.SpeakerCandidate, text)
	o.state.SetThinking(true)
	o.mu.Lock()
	monitor := o.monitor
	o.mu.Unlock()
	if monitor != nil {
		monitor.OnActivity()
	}
}

// OnOutputTranscription appends an agent delta.
func (o *Orchestrator) OnOutputTranscription(text string) {
	o.state.AppendTranscript(internal_session.SpeakerAgent, text)
}

// OnInterrupted drops all scheduled playback; the candidate barged in.
func (o *Orchestrator) OnInterrupted() {
	o.mu.Lock()
	scheduler := o.scheduler
	o.mu.Unlock()
	if scheduler != nil {
		scheduler.Interrupt()
	}
}

// OnTurnComplete clears the thinking indicator.
func (o *Orchestrator) OnTurnComplete() {
	o.state.SetThinking(false)
}

// OnDisconnect handles transport loss. A normal close during conclusion is
// expected; anything else fails the session.
func (o *Orchestrator) OnDisconnect(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	concluded := o.concluded
	o.mu.Unlock()
	if concluded {
		return
	}
	o.Fail(err)
}

// Conclude tears the session down in order, archives the recording,
// evaluates the transcript and persists the outcome. Idempotent: repeat
// calls return the first record.
func (o *Orchestrator) Conclude(ctx context.Context) (*internal_record.InterviewRecord, error) {
	o.mu.Lock()
	if o.concluded {
		record := o.record
		o.mu.Unlock()
		if record == nil {
			return nil, fmt.Errorf("session already failed")
		}
		return record, nil
	}
	o.concluded = true
	scheduler := o.scheduler
	monitor := o.monitor
	transport := o.transport
	cancel := o.cancel
	startedAt := o.startedAt
	o.mu.Unlock()

	o.state.SetPhase(internal_session.PhaseConcluding)

	if monitor != nil {
		monitor.Stop()
	}
	if scheduler != nil {
		scheduler.Interrupt()
	}
	if cancel != nil {
		cancel()
	}
	if transport != nil {
		if err := transport.Close(); err != nil {
			o.logger.Warnw("closing live session", "error", err)
		}
	}

	artifact, err := o.media.Finalize(ctx)
	if err != nil {
		o.logger.Errorw("recording finalize failed", "error", err)
	}

	transcript := o.state.Transcript()
	flags := o.state.Flags()
	record := &internal_record.InterviewRecord{
		SessionId:     o.state.ID(),
		CandidateId:   o.candidate.ID,
		CandidateName: o.candidate.Name,
		JobTitle:      o.job.Title,
		Transcript:    make(internal_record.Transcript, 0, len(transcript)),
		TrustScore:    o.state.TrustScore(),
		FlagCount:     len(flags),
	}
	for _, entry := range transcript {
		record.Transcript = append(record.Transcript, internal_record.TranscriptEntry{
			Speaker: string(entry.Speaker),
			Text:    entry.Text,
		})
	}
	if artifact != nil {
		record.ArtifactPath = artifact.Path
	}
	if !startedAt.IsZero() {
		record.DurationMs = uint64(time.Since(startedAt).Milliseconds())
	}

	o.state.SetPhase(internal_session.PhaseArchived)

	o.evaluate(ctx, record)
	o.persist(ctx, record)

	o.mu.Lock()
	o.record = record
	o.mu.Unlock()

	o.logger.Infow("interview archived",
		"sessionId", record.SessionId,
		"trustScore", record.TrustScore,
		"flags", record.FlagCount,
		"artifact", record.ArtifactPath,
	)
	return record, nil
}

// evaluate fills the score fields. Evaluation failure never blocks
// archival.
func (o *Orchestrator) evaluate(ctx context.Context, record *internal_record.InterviewRecord) {
	if o.deps.Evaluator == nil || len(record.Transcript) == 0 {
		return
	}
	input := internal_evaluate.Input{
		CandidateName: record.CandidateName,
		JobTitle:      record.JobTitle,
		TrustScore:    record.TrustScore,
		FlagCount:     record.FlagCount,
		Transcript:    make([]internal_evaluate.Turn, 0, len(record.Transcript)),
	}
	for _, entry := range record.Transcript {
		input.Transcript = append(input.Transcript, internal_evaluate.Turn{
			Speaker: entry.Speaker,
			Text:    entry.Text,
		})
	}
	evaluation, err := o.deps.Evaluator.Evaluate(ctx, input)
	if err != nil {
		o.logger.Warnw("transcript evaluation failed", "error", err)
		return
	}
	record.ClarityScore = evaluation.ClarityScore
	record.ConfidenceScore = evaluation.ConfidenceScore
	record.Summary = evaluation.Summary
}

// persist saves the record, falling back to a local JSON export so the
// outcome survives a store outage.
func (o *Orchestrator) persist(ctx context.Context, record *internal_record.InterviewRecord) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.Save(ctx, record); err != nil {
		o.logger.Errorw("record save failed, exporting locally", "error", err)
		path, exportErr := internal_record.ExportLocal(o.config.ArtifactDir, record)
		if exportErr != nil {
			o.logger.Errorw("local export failed", "error", exportErr)
			return
		}
		o.logger.Warnw("record exported locally", "path", path)
	}
}

// Fail terminates the session after an unrecoverable error. Devices are
// released without archiving.
func (o *Orchestrator) Fail(cause error) {
	o.mu.Lock()
	if o.concluded {
		o.mu.Unlock()
		return
	}
	o.concluded = true
	scheduler := o.scheduler
	monitor := o.monitor
	transport := o.transport
	cancel := o.cancel
	o.mu.Unlock()

	o.logger.Errorw("interview failed", "sessionId", o.state.ID(), "error", cause)
	o.state.SetPhase(internal_session.PhaseErrored)

	if monitor != nil {
		monitor.Stop()
	}
	if scheduler != nil {
		scheduler.Interrupt()
	}
	if cancel != nil {
		cancel()
	}
	if transport != nil {
		transport.Close()
	}
	o.media.Release()
}
