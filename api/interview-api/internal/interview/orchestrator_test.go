// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_interview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_playback "github.com/potentialai/api/interview-api/internal/audio/playback"
	internal_evaluate "github.com/potentialai/api/interview-api/internal/evaluate"
	internal_media "github.com/potentialai/api/interview-api/internal/media"
	internal_record "github.com/potentialai/api/interview-api/internal/record"
	internal_session "github.com/potentialai/api/interview-api/internal/session"
	internal_transport "github.com/potentialai/api/interview-api/internal/transport"
	"github.com/potentialai/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err)
	return logger
}

// ----- device fakes ---------------------------------------------------------

type fakeAudioSource struct {
	frames    chan []float32
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeAudioSource() *fakeAudioSource {
	return &fakeAudioSource{
		frames: make(chan []float32, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeAudioSource) Frames() <-chan []float32 { return f.frames }

func (f *fakeAudioSource) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		close(f.frames)
	})
	return nil
}

type fakeVideoSource struct{}

func (f *fakeVideoSource) Snapshot(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 640, 360)), nil
}

func (f *fakeVideoSource) Close() error { return nil }

type fakeProvider struct {
	audio     *fakeAudioSource
	audioErr  error
	withVideo bool
}

func (f *fakeProvider) OpenAudio(context.Context) (internal_media.AudioSource, error) {
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	return f.audio, nil
}

func (f *fakeProvider) OpenVideo(context.Context, internal_media.Resolution) (internal_media.VideoSource, error) {
	if !f.withVideo {
		return nil, errors.New("no camera")
	}
	return &fakeVideoSource{}, nil
}

type nopSink struct{}

func (nopSink) Play(*internal_playback.Handle) {}
func (nopSink) Stop(*internal_playback.Handle) {}

// ----- agent endpoint fake --------------------------------------------------

type agentServer struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
	got  chan internal_transport.LiveRequest
}

func newAgentServer(t *testing.T) (*agentServer, string) {
	agent := &agentServer{got: make(chan internal_transport.LiveRequest, 128)}
	server := httptest.NewServer(http.HandlerFunc(agent.handle))
	t.Cleanup(server.Close)
	return agent, "ws" + strings.TrimPrefix(server.URL, "http")
}

func (a *agentServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req internal_transport.LiveRequest
		if json.Unmarshal(message, &req) == nil {
			a.got <- req
		}
	}
}

func (a *agentServer) send(t *testing.T, msgType internal_transport.LiveMessageType, data interface{}) {
	t.Helper()
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	require.NotNil(t, conn)

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(internal_transport.LiveResponse{Type: msgType, Data: payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func (a *agentServer) drop() {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (a *agentServer) waitFor(t *testing.T, msgType internal_transport.LiveMessageType) internal_transport.LiveRequest {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case req := <-a.got:
			if req.Type == msgType {
				return req
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", msgType)
		}
	}
}

// ----- fixtures -------------------------------------------------------------

func testCandidate() Candidate {
	return Candidate{
		ID:             "cand-42",
		Name:           "Jordan Rivera",
		Headline:       "Backend engineer, distributed systems",
		Skills:         []string{"Go", "Postgres", "Kafka"},
		PotentialScore: 91,
	}
}

func testJob() Job {
	return Job{Title: "Senior Backend Engineer", Company: "Potential Labs", PotentialMatch: 87}
}

func newTestStore(t *testing.T) internal_record.Store {
	t.Helper()
	store, err := internal_record.NewSQLiteStore(newTestLogger(t), filepath.Join(t.TempDir(), "interviews.db"))
	require.NoError(t, err)
	return store
}

func newStartedOrchestrator(t *testing.T, agentURL string, provider *fakeProvider, store internal_record.Store) *Orchestrator {
	t.Helper()
	orchestrator := NewOrchestrator(newTestLogger(t), Config{
		AgentURL:    agentURL,
		ArtifactDir: t.TempDir(),
	}, testCandidate(), testJob(), Dependencies{
		Devices:   provider,
		Sink:      nopSink{},
		Evaluator: internal_evaluate.NewHeuristicEvaluator(),
		Store:     store,
	})
	require.NoError(t, orchestrator.Start(context.Background(), internal_media.Constraints{
		Audio:      true,
		Video:      true,
		Resolution: internal_media.Res720p,
		Container:  "wav",
	}))
	return orchestrator
}

func agentAudioPayload(samples int) string {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		pcm[i*2] = byte(i)
		pcm[i*2+1] = 0x01
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// ----- tests ----------------------------------------------------------------

func TestInterviewLifecycle(t *testing.T) {
	agent, url := newAgentServer(t)
	provider := &fakeProvider{audio: newFakeAudioSource(), withVideo: true}
	store := newTestStore(t)
	orchestrator := newStartedOrchestrator(t, url, provider, store)

	assert.Equal(t, internal_session.PhaseActive, orchestrator.State().Phase())
	agent.waitFor(t, internal_transport.LiveTypeSetup)

	// Candidate speaks, frames flow upstream.
	provider.audio.frames <- []float32{0.1, 0.2, 0.3, 0.4}
	agent.waitFor(t, internal_transport.LiveTypeAudio)

	// Agent answers with a burst of three chunks and transcription deltas.
	for i := 0; i < 3; i++ {
		agent.send(t, internal_transport.LiveTypeAgentAudio, internal_transport.LiveAudioData{
			Payload:    agentAudioPayload(240),
			SampleRate: 24000,
			Channels:   1,
		})
	}
	agent.send(t, internal_transport.LiveTypeOutputTranscription, internal_transport.LiveTranscriptionData{Text: "Tell me about "})
	agent.send(t, internal_transport.LiveTypeOutputTranscription, internal_transport.LiveTranscriptionData{Text: "your last project."})
	agent.send(t, internal_transport.LiveTypeInputTranscription, internal_transport.LiveTranscriptionData{Text: "I built an ingestion pipeline."})

	require.Eventually(t, func() bool {
		return len(orchestrator.State().Transcript()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	transcript := orchestrator.State().Transcript()
	assert.Equal(t, internal_session.SpeakerAgent, transcript[0].Speaker)
	assert.Equal(t, "Tell me about your last project.", transcript[0].Text)
	assert.Equal(t, internal_session.SpeakerCandidate, transcript[1].Speaker)

	// Candidate barges in.
	agent.send(t, internal_transport.LiveTypeInterrupted, nil)
	require.Eventually(t, func() bool {
		return !orchestrator.State().Turn().Speaking
	}, 2*time.Second, 10*time.Millisecond)

	record, err := orchestrator.Conclude(context.Background())
	require.NoError(t, err)
	assert.Equal(t, internal_session.PhaseArchived, orchestrator.State().Phase())
	assert.Equal(t, "cand-42", record.CandidateId)
	assert.Equal(t, 100, record.TrustScore)
	require.Len(t, record.Transcript, 2)
	assert.NotEmpty(t, record.ArtifactPath)
	assert.True(t, strings.HasPrefix(filepath.Base(record.ArtifactPath), internal_media.ArtifactPrefix))
	assert.NotEmpty(t, record.Summary)

	// The record made it to the store.
	stored, err := store.GetBySession(context.Background(), record.SessionId)
	require.NoError(t, err)
	assert.Equal(t, record.TrustScore, stored.TrustScore)
}

func TestConcludeIsIdempotent(t *testing.T) {
	agent, url := newAgentServer(t)
	provider := &fakeProvider{audio: newFakeAudioSource()}
	orchestrator := newStartedOrchestrator(t, url, provider, nil)
	agent.waitFor(t, internal_transport.LiveTypeSetup)

	first, err := orchestrator.Conclude(context.Background())
	require.NoError(t, err)
	second, err := orchestrator.Conclude(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestStartFailsWhenMicrophoneDenied(t *testing.T) {
	_, url := newAgentServer(t)
	provider := &fakeProvider{audioErr: errors.New("permission denied")}
	orchestrator := NewOrchestrator(newTestLogger(t), Config{
		AgentURL:    url,
		ArtifactDir: t.TempDir(),
	}, testCandidate(), testJob(), Dependencies{Devices: provider, Sink: nopSink{}})

	err := orchestrator.Start(context.Background(), internal_media.Constraints{Audio: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, internal_media.ErrDeviceUnavailable)
	assert.Equal(t, internal_session.PhaseErrored, orchestrator.State().Phase())
}

func TestStartFailsOnUnsupportedContainer(t *testing.T) {
	_, url := newAgentServer(t)
	provider := &fakeProvider{audio: newFakeAudioSource()}
	orchestrator := NewOrchestrator(newTestLogger(t), Config{
		AgentURL:    url,
		ArtifactDir: t.TempDir(),
	}, testCandidate(), testJob(), Dependencies{Devices: provider, Sink: nopSink{}})

	err := orchestrator.Start(context.Background(), internal_media.Constraints{Audio: true, Container: "webm"})
	require.Error(t, err)
	assert.ErrorIs(t, err, internal_media.ErrUnsupportedFormat)
	assert.Equal(t, internal_session.PhaseErrored, orchestrator.State().Phase())
}

func TestStartFailsWhenAgentUnreachable(t *testing.T) {
	provider := &fakeProvider{audio: newFakeAudioSource()}
	orchestrator := NewOrchestrator(newTestLogger(t), Config{
		AgentURL:    "ws://127.0.0.1:1/live",
		ArtifactDir: t.TempDir(),
	}, testCandidate(), testJob(), Dependencies{Devices: provider, Sink: nopSink{}})

	err := orchestrator.Start(context.Background(), internal_media.Constraints{Audio: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, internal_transport.ErrTransport)
	assert.Equal(t, internal_session.PhaseErrored, orchestrator.State().Phase())
	assert.Equal(t, internal_media.StateStopped, orchestrator.Media().State())
}

func TestTransportLossFailsSession(t *testing.T) {
	agent, url := newAgentServer(t)
	provider := &fakeProvider{audio: newFakeAudioSource()}
	orchestrator := newStartedOrchestrator(t, url, provider, nil)
	agent.waitFor(t, internal_transport.LiveTypeSetup)

	agent.drop()

	require.Eventually(t, func() bool {
		return orchestrator.State().Phase() == internal_session.PhaseErrored
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, internal_media.StateStopped, orchestrator.Media().State())
}

func TestIntegrityNoticeReachesAgent(t *testing.T) {
	agent, url := newAgentServer(t)
	provider := &fakeProvider{audio: newFakeAudioSource()}
	orchestrator := newStartedOrchestrator(t, url, provider, nil)
	agent.waitFor(t, internal_transport.LiveTypeSetup)

	orchestrator.Monitor().OnTabSwitch()

	assert.Equal(t, 85, orchestrator.State().TrustScore())
	req := agent.waitFor(t, internal_transport.LiveTypeNotice)
	data, err := json.Marshal(req.Data)
	require.NoError(t, err)
	var notice internal_transport.LiveNoticeData
	require.NoError(t, json.Unmarshal(data, &notice))
	assert.Contains(t, notice.Text, "TAB_SWITCH")
}

func TestSystemInstructionAndGreeting(t *testing.T) {
	instruction := SystemInstruction(testCandidate(), testJob())
	assert.Contains(t, instruction, "Aria")
	assert.Contains(t, instruction, `"Senior Backend Engineer"`)
	assert.Contains(t, instruction, "Go, Postgres, Kafka")
	assert.Contains(t, instruction, "5. Conclusion")

	greeting := Greeting(testCandidate(), testJob())
	assert.True(t, strings.HasPrefix(greeting, "[START INTERVIEW] Hello Jordan."))
	assert.Contains(t, greeting, "Senior Backend Engineer")

	generic := Greeting(testCandidate(), Job{})
	assert.Contains(t, generic, "the position")
}

type failingStore struct{}

func (failingStore) Save(context.Context, *internal_record.InterviewRecord) error {
	return internal_record.ErrPersistence
}

func (failingStore) GetBySession(context.Context, string) (*internal_record.InterviewRecord, error) {
	return nil, internal_record.ErrPersistence
}

func (failingStore) ListByCandidate(context.Context, string) ([]*internal_record.InterviewRecord, error) {
	return nil, internal_record.ErrPersistence
}

func TestPersistenceFailureFallsBackToLocalExport(t *testing.T) {
	agent, url := newAgentServer(t)
	provider := &fakeProvider{audio: newFakeAudioSource()}
	artifactDir := t.TempDir()
	orchestrator := NewOrchestrator(newTestLogger(t), Config{
		AgentURL:    url,
		ArtifactDir: artifactDir,
	}, testCandidate(), testJob(), Dependencies{
		Devices: provider,
		Sink:    nopSink{},
		Store:   failingStore{},
	})
	require.NoError(t, orchestrator.Start(context.Background(), internal_media.Constraints{Audio: true}))
	agent.waitFor(t, internal_transport.LiveTypeSetup)

	record, err := orchestrator.Conclude(context.Background())
	require.NoError(t, err)

	exportPath := filepath.Join(artifactDir, "interview_record_"+record.SessionId+".json")
	data, readErr := os.ReadFile(exportPath)
	require.NoError(t, readErr)
	var exported internal_record.InterviewRecord
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, record.SessionId, exported.SessionId)
}
