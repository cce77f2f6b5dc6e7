// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_transport maintains the realtime websocket session with
// the interview agent: candidate audio and periodic video frames flow out,
// agent audio and transcription deltas flow in. Messages are JSON envelopes
// typed by LiveMessageType.
package internal_transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internal_audio "github.com/potentialai/api/interview-api/internal/audio"
	internal_codec "github.com/potentialai/api/interview-api/internal/audio/codec"
	internal_media "github.com/potentialai/api/interview-api/internal/media"
	"github.com/potentialai/pkg/commons"
	"github.com/potentialai/pkg/utils"
)

// ErrTransport wraps any websocket-layer failure surfaced to callers.
var ErrTransport = errors.New("realtime transport error")

// Status is the connection lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusErrored    Status = "errored"
)

// SnapshotInterval is how often a video frame is sent while streaming.
const SnapshotInterval = time.Second

// Handler receives inbound agent events. Callbacks run on the listener
// goroutine; implementations must not block.
type Handler interface {
	OnAgentAudio(chunk internal_audio.Chunk)
	OnInputTranscription(text string)
	OnOutputTranscription(text string)
	OnInterrupted()
	OnTurnComplete()
	OnDisconnect(err error)
}

// Config describes the remote agent endpoint and the setup payload.
type Config struct {
	URL               string
	Headers           map[string]string
	SessionID         string
	SystemInstruction string
	Greeting          string
}

// Session is one live connection to the interview agent.
type Session struct {
	logger  commons.Logger
	config  Config
	handler Handler

	connection *websocket.Conn
	mu         sync.RWMutex
	writeMu    sync.Mutex // Separate mutex for write operations
	done       chan struct{}
	closed     bool
	status     Status
}

// NewSession creates an unconnected session.
func NewSession(logger commons.Logger, config Config, handler Handler) *Session {
	return &Session{
		logger:  logger,
		config:  config,
		handler: handler,
		done:    make(chan struct{}),
		status:  StatusIdle,
	}
}

// Status returns the current connection state.
func (session *Session) Status() Status {
	session.mu.RLock()
	defer session.mu.RUnlock()
	return session.status
}

func (session *Session) setStatus(status Status) {
	session.mu.Lock()
	session.status = status
	session.mu.Unlock()
}

// Connect dials the agent endpoint, sends the setup envelope and starts the
// response listener.
func (session *Session) Connect(ctx context.Context) error {
	start := time.Now()
	session.setStatus(StatusConnecting)

	headers := http.Header{}
	for key, value := range session.config.Headers {
		headers.Set(key, value)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, session.config.URL, headers)
	if err != nil {
		session.setStatus(StatusErrored)
		return fmt.Errorf("%w: failed to connect: %v", ErrTransport, err)
	}

	conn.SetReadLimit(10 * 1024 * 1024) // 10MB max message size
	conn.SetPongHandler(func(appData string) error {
		session.logger.Debugf("Received pong from agent endpoint")
		return nil
	})

	session.mu.Lock()
	session.connection = conn
	session.status = StatusOpen
	session.mu.Unlock()

	if err := session.sendSetup(); err != nil {
		session.setStatus(StatusErrored)
		return err
	}

	utils.Go(ctx, func() {
		if err := session.responseListener(ctx); err != nil {
			session.logger.Errorf("Error in live response listener: %v", err)
		}
	})

	session.logger.Benchmark("LiveSession.Connect", time.Since(start))
	return nil
}

// sendSetup sends the initial session configuration to the agent.
func (session *Session) sendSetup() error {
	return session.sendMessage(LiveRequest{
		Type:      LiveTypeSetup,
		Timestamp: time.Now().UnixMilli(),
		Data: LiveSetupData{
			SessionID:         session.config.SessionID,
			SystemInstruction: session.config.SystemInstruction,
			Greeting:          session.config.Greeting,
			InputSampleRate:   internal_audio.CAPTURE_AUDIO_CONFIG.SampleRate,
			OutputSampleRate:  internal_audio.AGENT_AUDIO_CONFIG.SampleRate,
		},
	})
}

// sendMessage safely sends a message over the websocket connection.
func (session *Session) sendMessage(msg LiveRequest) error {
	session.writeMu.Lock()
	defer session.writeMu.Unlock()

	session.mu.RLock()
	conn := session.connection
	session.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("%w: connection is nil", ErrTransport)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal message: %v", ErrTransport, err)
	}

	session.logger.Debugf("Sending live message: type=%s", msg.Type)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: failed to write message: %v", ErrTransport, err)
	}
	return nil
}

// SendAudio encodes one candidate frame and sends it upstream. Frames are
// dropped when the session is not open.
func (session *Session) SendAudio(samples []float32) error {
	if session.Status() != StatusOpen {
		return nil
	}
	payload := internal_codec.EncodeOutbound(samples)
	if payload == "" {
		return nil
	}
	return session.sendMessage(LiveRequest{
		Type:      LiveTypeAudio,
		Timestamp: time.Now().UnixMilli(),
		Data: LiveAudioData{
			Payload:    payload,
			SampleRate: internal_audio.CAPTURE_AUDIO_CONFIG.SampleRate,
			Channels:   internal_audio.CAPTURE_AUDIO_CONFIG.Channels,
		},
	})
}

// SendSystemNotice sends an out-of-band advisory notice to the agent.
// Notices are advisory: outside an open session they are dropped, not
// failed.
func (session *Session) SendSystemNotice(text string) error {
	if status := session.Status(); status != StatusOpen {
		session.logger.Debugw("system notice dropped, session not open", "status", status)
		return nil
	}
	return session.sendMessage(LiveRequest{
		Type:      LiveTypeNotice,
		Timestamp: time.Now().UnixMilli(),
		Data:      LiveNoticeData{Text: text},
	})
}

// StreamAudio pumps candidate frames from the audio source until the source
// closes, the context ends or the session closes. Frames are sent in arrival
// order on a single goroutine.
func (session *Session) StreamAudio(ctx context.Context, source internal_media.AudioSource, onFrame func([]float32)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.done:
			return nil
		case samples, ok := <-source.Frames():
			if !ok {
				return nil
			}
			if onFrame != nil {
				onFrame(samples)
			}
			if err := session.SendAudio(samples); err != nil {
				session.logger.Warnw("dropping candidate audio frame", "error", err)
			}
		}
	}
}

// StreamVideo sends one downscaled JPEG snapshot per SnapshotInterval until
// the context ends or the session closes. A nil source is a no-op.
func (session *Session) StreamVideo(ctx context.Context, source internal_media.VideoSource) error {
	if source == nil {
		return nil
	}

	ticker := time.NewTicker(SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.done:
			return nil
		case <-ticker.C:
			if session.Status() != StatusOpen {
				continue
			}
			img, err := source.Snapshot(ctx)
			if err != nil {
				session.logger.Debugw("video snapshot unavailable", "error", err)
				continue
			}
			frame, err := EncodeFrame(img)
			if err != nil {
				session.logger.Warnw("video frame encode failed", "error", err)
				continue
			}
			if err := session.sendMessage(LiveRequest{
				Type:      LiveTypeImage,
				Timestamp: time.Now().UnixMilli(),
				Data:      frame,
			}); err != nil {
				session.logger.Warnw("dropping video frame", "error", err)
			}
		}
	}
}

// responseListener reads agent responses until the connection or session
// ends.
func (session *Session) responseListener(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.done:
			return nil
		default:
		}

		session.mu.RLock()
		conn := session.connection
		session.mu.RUnlock()
		if conn == nil {
			return fmt.Errorf("%w: connection is nil", ErrTransport)
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-session.done:
				// Close() already tore the connection down.
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				session.logger.Debugf("Live connection closed normally")
				session.setStatus(StatusClosed)
				session.handler.OnDisconnect(nil)
				return nil
			}
			session.setStatus(StatusErrored)
			wrapped := fmt.Errorf("%w: read error: %v", ErrTransport, err)
			session.handler.OnDisconnect(wrapped)
			return wrapped
		}

		var resp LiveResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			session.logger.Errorf("Failed to unmarshal live response: %v", err)
			continue
		}

		session.logger.Debugf("Received live message: type=%s", resp.Type)
		if err := session.processResponse(&resp); err != nil {
			session.logger.Errorf("Error processing live response: %v", err)
		}
	}
}

// processResponse handles one inbound envelope. The response type determines
// what data structure is in the Data field.
func (session *Session) processResponse(resp *LiveResponse) error {
	if resp.Error != nil {
		session.logger.Errorw("agent error response",
			"code", resp.Error.Code,
			"message", resp.Error.Message,
			"details", resp.Error.Details,
		)
		return nil
	}

	switch resp.Type {
	case LiveTypeAgentAudio:
		var audioData LiveAudioData
		if err := json.Unmarshal(resp.Data, &audioData); err != nil {
			session.logger.Errorf("Failed to parse agent audio data: %v", err)
			return nil
		}
		sampleRate := audioData.SampleRate
		if sampleRate == 0 {
			sampleRate = internal_audio.AGENT_AUDIO_CONFIG.SampleRate
		}
		channels := audioData.Channels
		if channels == 0 {
			channels = internal_audio.AGENT_AUDIO_CONFIG.Channels
		}
		pcm, err := internal_codec.DecodeInboundPCM(audioData.Payload, channels)
		if err != nil {
			session.logger.Errorw("discarding malformed agent audio", "error", err)
			return nil
		}
		session.handler.OnAgentAudio(internal_audio.Chunk{
			PCM16:      pcm,
			SampleRate: sampleRate,
			Channels:   channels,
		})

	case LiveTypeInputTranscription:
		var transcription LiveTranscriptionData
		if err := json.Unmarshal(resp.Data, &transcription); err != nil {
			session.logger.Errorf("Failed to parse input transcription: %v", err)
			return nil
		}
		session.handler.OnInputTranscription(transcription.Text)

	case LiveTypeOutputTranscription:
		var transcription LiveTranscriptionData
		if err := json.Unmarshal(resp.Data, &transcription); err != nil {
			session.logger.Errorf("Failed to parse output transcription: %v", err)
			return nil
		}
		session.handler.OnOutputTranscription(transcription.Text)

	case LiveTypeInterrupted:
		session.handler.OnInterrupted()

	case LiveTypeTurnComplete:
		session.handler.OnTurnComplete()

	case LiveTypeError:
		var errorData LiveErrorData
		if err := json.Unmarshal(resp.Data, &errorData); err != nil {
			session.logger.Errorf("Failed to parse error data: %v", err)
			return nil
		}
		session.logger.Errorw("agent error", "code", errorData.Code, "message", errorData.Message)

	case LiveTypePing:
		session.sendMessage(LiveRequest{
			Type:      LiveTypePong,
			Timestamp: time.Now().UnixMilli(),
		})

	case LiveTypePong:
		session.logger.Debugf("Received pong message")
	}

	return nil
}

// Close terminates the connection and stops the listener. Idempotent.
func (session *Session) Close() error {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return nil
	}
	session.closed = true
	conn := session.connection
	session.connection = nil
	if session.status != StatusErrored {
		session.status = StatusClosed
	}
	session.mu.Unlock()

	close(session.done)

	if conn != nil {
		session.writeMu.Lock()
		err := conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		session.writeMu.Unlock()
		if err != nil {
			session.logger.Debugf("Error sending close message: %v", err)
		}
		if err := conn.Close(); err != nil {
			session.logger.Debugf("Error closing live connection: %v", err)
		}
	}
	return nil
}
