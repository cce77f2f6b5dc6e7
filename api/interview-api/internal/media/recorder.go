// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	internal_audio "github.com/potentialai/api/interview-api/internal/audio"
	internal_audio_resampler "github.com/potentialai/api/interview-api/internal/audio/resampler"
	"github.com/potentialai/pkg/commons"
)

const WAVPCMFormat = 1 // WAV PCM format tag

// archiveConfig is the rate everything is recorded at. Agent audio arrives
// at this rate already; candidate mic audio is resampled up on the way in.
var archiveConfig = internal_audio.AGENT_AUDIO_CONFIG

// chunk is a recorded audio fragment placed at a specific position on the
// timeline. ByteOffset is the byte position relative to Start().
type chunk struct {
	ByteOffset int
	Data       []byte
	Track      int // trackCandidate or trackAgent
}

const (
	trackCandidate = 0
	trackAgent     = 1
)

// sessionRecorder accumulates both conversation legs on one shared
// timeline and renders the session to a single mixed WAV blob.
type sessionRecorder struct {
	logger    commons.Logger
	resampler internal_audio_resampler.AudioResampler
	mu        sync.Mutex
	startTime time.Time
	started   bool
	chunks    []chunk
	// Per-track cursor: the byte position just past the last written byte on
	// each track. Candidate (mic) audio is placed at wall clock. Agent audio
	// arrives in bursts faster than real time, so its cursor paces chunks at
	// the playback rate — only the first chunk after a gap anchors at wall
	// clock.
	cursor [2]int
	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time
}

func newSessionRecorder(logger commons.Logger, resampler internal_audio_resampler.AudioResampler) *sessionRecorder {
	return &sessionRecorder{
		logger:    logger,
		resampler: resampler,
		clock:     time.Now,
	}
}

// Start begins the recording timeline. Both tracks share this start time;
// audio is placed based on when it arrives relative to this moment.
func (r *sessionRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = r.clock()
	r.started = true
}

func bytesPerSecond() int {
	return archiveConfig.BytesPerSecond()
}

// durationBytes converts a wall-clock duration to a frame-aligned byte count.
func durationBytes(d time.Duration) int {
	raw := int(d.Seconds() * float64(bytesPerSecond()))
	frameSize := internal_audio.BytesPerSample * int(archiveConfig.Channels)
	return (raw / frameSize) * frameSize
}

// RecordCandidate places captured microphone PCM (16kHz mono) on the
// candidate track at the current wall-clock position, upconverted to the
// archive rate. A frame that fails to convert is skipped rather than
// written at the wrong rate.
func (r *sessionRecorder) RecordCandidate(pcm []byte) {
	resampled, err := r.resampler.Resample(pcm, internal_audio.CAPTURE_AUDIO_CONFIG, archiveConfig)
	if err != nil {
		r.logger.Warnw("failed to resample candidate audio, frame dropped",
			"error", err.Error(),
			"source_rate", internal_audio.CAPTURE_AUDIO_CONFIG.SampleRate,
		)
		return
	}
	r.push(resampled, trackCandidate)
}

// RecordAgent places decoded agent PCM (24kHz mono) on the agent track,
// paced at playback rate through bursts.
func (r *sessionRecorder) RecordAgent(pcm []byte) {
	r.push(pcm, trackAgent)
}

func (r *sessionRecorder) push(data []byte, track int) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	wallOffset := 0
	if r.started {
		wallOffset = durationBytes(r.clock().Sub(r.startTime))
	}

	var offset int
	switch track {
	case trackCandidate:
		// Mic delivers at real-time rate, so wall clock is the correct
		// timeline position.
		offset = wallOffset
		if r.cursor[track] > offset {
			offset = r.cursor[track]
		}
	case trackAgent:
		// Burst continuation paces from the cursor; a new segment after
		// silence anchors at wall clock. Wall-clock placement for every
		// chunk caused gaps and overlaps between burst-delivered chunks.
		if r.cursor[track] > wallOffset {
			offset = r.cursor[track]
		} else {
			offset = wallOffset
		}
	}

	// Copy to avoid caller mutations.
	buf := make([]byte, len(data))
	copy(buf, data)

	r.chunks = append(r.chunks, chunk{
		ByteOffset: offset,
		Data:       buf,
		Track:      track,
	})
	r.cursor[track] = offset + len(buf)
}

// Mixdown renders both tracks over the full session span (gaps are
// silence) and sums them into one PCM buffer with clamping.
func (r *sessionRecorder) Mixdown() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil, fmt.Errorf("recorder was never started")
	}

	totalLen := durationBytes(r.clock().Sub(r.startTime))
	for _, c := range r.chunks {
		if end := c.ByteOffset + len(c.Data); end > totalLen {
			totalLen = end
		}
	}
	if totalLen%2 != 0 {
		totalLen++
	}

	candidatePCM := make([]byte, totalLen)
	agentPCM := make([]byte, totalLen)
	for _, c := range r.chunks {
		dst := candidatePCM
		if c.Track == trackAgent {
			dst = agentPCM
		}
		copy(dst[c.ByteOffset:], c.Data)
	}

	mixed := make([]byte, totalLen)
	for i := 0; i+1 < totalLen; i += 2 {
		a := int32(int16(binary.LittleEndian.Uint16(candidatePCM[i:])))
		b := int32(int16(binary.LittleEndian.Uint16(agentPCM[i:])))
		sum := a + b
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		binary.LittleEndian.PutUint16(mixed[i:], uint16(int16(sum)))
	}

	r.logger.Infof(
		"recorder mixdown: totalLen=%d (%.2fs), chunks=%d",
		totalLen, float64(totalLen)/float64(bytesPerSecond()), len(r.chunks),
	)
	return mixed, nil
}

func createWAVFile(pcmData []byte) []byte {
	var buf bytes.Buffer
	sampleRate := archiveConfig.SampleRate
	channels := archiveConfig.Channels
	bps := bytesPerSecond()

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(WAVPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(internal_audio.BytesPerSample*int(channels)))
	binary.Write(&buf, binary.LittleEndian, uint16(internal_audio.BitsPerSample))

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes()
}
