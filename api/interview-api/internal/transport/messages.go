// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_transport

import "encoding/json"

// =============================================================================
// Live Message Types
// =============================================================================

// LiveMessageType defines the type of message and what data structure to expect
type LiveMessageType string

const (
	// Request types (client -> agent)
	LiveTypeSetup  LiveMessageType = "setup"  // Data: LiveSetupData
	LiveTypeAudio  LiveMessageType = "audio"  // Data: LiveAudioData
	LiveTypeImage  LiveMessageType = "image"  // Data: LiveImageData
	LiveTypeNotice LiveMessageType = "notice" // Data: LiveNoticeData

	// Response types (agent -> client)
	LiveTypeAgentAudio          LiveMessageType = "agent_audio"          // Data: LiveAudioData
	LiveTypeInputTranscription  LiveMessageType = "input_transcription"  // Data: LiveTranscriptionData
	LiveTypeOutputTranscription LiveMessageType = "output_transcription" // Data: LiveTranscriptionData
	LiveTypeInterrupted         LiveMessageType = "interrupted"          // Data: nil
	LiveTypeTurnComplete        LiveMessageType = "turn_complete"        // Data: nil
	LiveTypeError               LiveMessageType = "error"                // Data: LiveErrorData

	// Control types (bidirectional)
	LiveTypePing LiveMessageType = "ping" // Data: nil
	LiveTypePong LiveMessageType = "pong" // Data: nil
)

// =============================================================================
// Request/Response Envelope
// =============================================================================

// LiveRequest represents an outgoing message with typed data
type LiveRequest struct {
	Type      LiveMessageType `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      interface{}     `json:"data,omitempty"`
}

// LiveResponse represents an incoming message with typed data
type LiveResponse struct {
	Type  LiveMessageType `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *LiveErrorData  `json:"error,omitempty"`
}

// =============================================================================
// Data Structures for each message type
// =============================================================================

// LiveSetupData carries the session configuration sent once after connect.
// Used with: LiveTypeSetup
type LiveSetupData struct {
	SessionID         string `json:"session_id"`
	SystemInstruction string `json:"system_instruction,omitempty"`
	Greeting          string `json:"greeting,omitempty"`
	InputSampleRate   uint32 `json:"input_sample_rate"`
	OutputSampleRate  uint32 `json:"output_sample_rate"`
}

// LiveAudioData carries one base64 PCM16 audio chunk.
// Used with: LiveTypeAudio and LiveTypeAgentAudio
type LiveAudioData struct {
	Payload    string `json:"payload"`
	SampleRate uint32 `json:"sample_rate"`
	Channels   uint16 `json:"channels"`
}

// LiveImageData carries one base64 JPEG video frame.
// Used with: LiveTypeImage
type LiveImageData struct {
	Payload  string `json:"payload"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// LiveNoticeData carries an out-of-band system notice.
// Used with: LiveTypeNotice
type LiveNoticeData struct {
	Text string `json:"text"`
}

// LiveTranscriptionData carries a transcription delta.
// Used with: LiveTypeInputTranscription and LiveTypeOutputTranscription
type LiveTranscriptionData struct {
	Text string `json:"text"`
}

// LiveErrorData contains error information
// Used with: LiveTypeError or in LiveResponse.Error
type LiveErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
