// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_codec converts between raw float32 samples and the
// transport encoding the remote endpoint speaks: 16-bit little-endian PCM
// wrapped in standard base64. All functions are pure and safe to call from
// any goroutine.
package internal_codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// ErrMalformedPayload reports an inbound payload whose byte length is not a
// whole number of frames for the declared channel count.
var ErrMalformedPayload = fmt.Errorf("malformed audio payload")

// PCM16FromFloat32 quantizes samples in [-1,1] to 16-bit little-endian PCM.
// Values are scaled by 32768 and truncated, clamping at the int16 range.
func PCM16FromFloat32(samples []float32) []byte {
	if len(samples) == 0 {
		return nil
	}
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Float32FromPCM16 normalizes 16-bit little-endian PCM back to [-1,1].
// The byte length must be even.
func Float32FromPCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte length %d", ErrMalformedPayload, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out, nil
}

// EncodeOutbound packs captured samples into the transport encoding.
// Empty input yields an empty string, not an error.
func EncodeOutbound(samples []float32) string {
	pcm := PCM16FromFloat32(samples)
	if len(pcm) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeInbound reverses EncodeOutbound for an inbound agent payload,
// de-interleaving into one slice per channel. The frame count is
// byteLength / (2 * channels); payloads that do not divide evenly fail
// with ErrMalformedPayload so the caller can drop the chunk.
func DecodeInbound(payload string, sampleRate uint32, channels uint16) ([][]float32, error) {
	if channels == 0 {
		return nil, fmt.Errorf("%w: zero channel count", ErrMalformedPayload)
	}
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	frameSize := 2 * int(channels)
	if len(pcm)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of frame size %d", ErrMalformedPayload, len(pcm), frameSize)
	}

	frameCount := len(pcm) / frameSize
	buffers := make([][]float32, channels)
	for ch := range buffers {
		buffers[ch] = make([]float32, frameCount)
	}
	for i := 0; i < frameCount; i++ {
		for ch := 0; ch < int(channels); ch++ {
			sample := int16(binary.LittleEndian.Uint16(pcm[(i*int(channels)+ch)*2:]))
			buffers[ch][i] = float32(sample) / 32768.0
		}
	}
	return buffers, nil
}

// DecodeInboundPCM decodes the transport wrapping only, returning raw PCM16
// bytes for consumers that keep audio in wire format (recorder, playback).
func DecodeInboundPCM(payload string, channels uint16) ([]byte, error) {
	if channels == 0 {
		return nil, fmt.Errorf("%w: zero channel count", ErrMalformedPayload)
	}
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	frameSize := 2 * int(channels)
	if len(pcm)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of frame size %d", ErrMalformedPayload, len(pcm), frameSize)
	}
	return pcm, nil
}
