// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_audio

import "time"

// Config describes a PCM wire format.
type Config struct {
	SampleRate uint32
	Channels   uint16
}

const (
	BytesPerSample = 2  // LINEAR16 → 2 bytes per sample
	BitsPerSample  = 16 // LINEAR16 → 16 bits per sample
)

// CAPTURE_AUDIO_CONFIG is the microphone leg: 16kHz mono LINEAR16, the rate
// the remote conversational endpoint expects for realtime input.
var CAPTURE_AUDIO_CONFIG = Config{SampleRate: 16000, Channels: 1}

// AGENT_AUDIO_CONFIG is the agent response leg: 24kHz mono LINEAR16 as
// delivered by the endpoint. Playback and recording pace at this rate.
var AGENT_AUDIO_CONFIG = Config{SampleRate: 24000, Channels: 1}

// BytesPerSecond returns the PCM byte rate of the config.
func (c Config) BytesPerSecond() int {
	return int(c.SampleRate) * int(c.Channels) * BytesPerSample
}

// Duration converts a PCM byte length in this config to wall-clock time.
func (c Config) Duration(byteLen int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 || byteLen <= 0 {
		return 0
	}
	return time.Duration(float64(byteLen) / float64(bps) * float64(time.Second))
}

// Chunk is a transient PCM fragment in transit between the codec adapter
// and the transport session or playback scheduler. Never persisted.
type Chunk struct {
	PCM16      []byte
	SampleRate uint32
	Channels   uint16
}

// Duration returns the playback time of the chunk.
func (c Chunk) Duration() time.Duration {
	return Config{SampleRate: c.SampleRate, Channels: c.Channels}.Duration(len(c.PCM16))
}
