// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_audio_resampler converts LINEAR16 PCM between the wire
// formats of the two session legs. Conversion runs through
// go-audio-resampler; converters are stateful and cached per rate pair so a
// continuous stream keeps its filter state across chunks.
package internal_audio_resampler

import (
	"encoding/binary"
	"fmt"
	"sync"

	goresampler "github.com/tphakala/go-audio-resampler"

	internal_audio "github.com/potentialai/api/interview-api/internal/audio"
	"github.com/potentialai/pkg/commons"
)

// AudioResampler converts PCM16 audio from one config to another.
type AudioResampler interface {
	Resample(pcm []byte, from, to internal_audio.Config) ([]byte, error)
}

type rateKey struct {
	from uint32
	to   uint32
}

type resampler struct {
	logger commons.Logger

	mu         sync.Mutex
	converters map[rateKey]goresampler.Resampler
}

// GetResampler returns the shared PCM16 resampler.
func GetResampler(logger commons.Logger) (AudioResampler, error) {
	return &resampler{
		logger:     logger,
		converters: make(map[rateKey]goresampler.Resampler),
	}, nil
}

// Resample converts mono PCM16 from one sample rate to another. Equal rates
// return a copy untouched.
func (r *resampler) Resample(pcm []byte, from, to internal_audio.Config) ([]byte, error) {
	if from.SampleRate == to.SampleRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}
	if len(pcm) < internal_audio.BytesPerSample {
		return nil, nil
	}

	conv, err := r.converter(from, to)
	if err != nil {
		return nil, err
	}

	resampled, err := conv.Process(floatsFromPCM16(pcm))
	if err != nil {
		return nil, fmt.Errorf("resample %dHz to %dHz: %w", from.SampleRate, to.SampleRate, err)
	}
	return pcm16FromFloats(resampled), nil
}

func (r *resampler) converter(from, to internal_audio.Config) (goresampler.Resampler, error) {
	key := rateKey{from: from.SampleRate, to: to.SampleRate}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.converters[key]; ok {
		return conv, nil
	}

	conv, err := goresampler.New(&goresampler.Config{
		InputRate:  float64(from.SampleRate),
		OutputRate: float64(to.SampleRate),
		Channels:   int(from.Channels),
		Quality:    goresampler.QualitySpec{Preset: goresampler.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler %dHz to %dHz: %w", from.SampleRate, to.SampleRate, err)
	}

	r.logger.Debugw("audio resampler created",
		"from", from.SampleRate,
		"to", to.SampleRate,
	)
	r.converters[key] = conv
	return conv, nil
}

func floatsFromPCM16(pcm []byte) []float64 {
	samples := make([]float64, len(pcm)/internal_audio.BytesPerSample)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return samples
}

func pcm16FromFloats(samples []float64) []byte {
	pcm := make([]byte, len(samples)*internal_audio.BytesPerSample)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767.0)))
	}
	return pcm
}
