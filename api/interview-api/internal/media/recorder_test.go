// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_media

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	internal_audio "github.com/potentialai/api/interview-api/internal/audio"
	"github.com/potentialai/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(commons.Name("test-media"))
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

// ratioResampler converts by exact rate ratio so placement assertions stay
// deterministic regardless of converter filter delay.
type ratioResampler struct {
	err error
}

func (r ratioResampler) Resample(pcm []byte, from, to internal_audio.Config) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	n := len(pcm) * int(to.SampleRate) / int(from.SampleRate)
	n -= n % 2
	out := make([]byte, n)
	if len(pcm) > 0 {
		for i := range out {
			out[i] = pcm[0]
		}
	}
	return out, nil
}

func newTestRecorder(t *testing.T) *sessionRecorder {
	t.Helper()
	rec := newSessionRecorder(newTestLogger(t), ratioResampler{})
	// Frozen clock keeps wall-clock offsets at zero.
	now := time.Now()
	rec.clock = func() time.Time { return now }
	return rec
}

func pcm(val byte, length int) []byte {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = val
	}
	return buf
}

func wavPCMData(wav []byte) []byte { return wav[44:] }

func TestRecordAgentAudio(t *testing.T) {
	rec := newTestRecorder(t)
	data := pcm(0x02, 640)
	rec.RecordAgent(data)

	if len(rec.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(rec.chunks))
	}
	if rec.chunks[0].Track != trackAgent {
		t.Errorf("expected agent track")
	}
}

func TestRecordCandidateResamplesToArchiveRate(t *testing.T) {
	rec := newTestRecorder(t)
	// 320 bytes at 16kHz mono = 10ms; at the 24kHz archive rate the same
	// span is 480 bytes.
	rec.RecordCandidate(pcm(0x01, 320))

	if len(rec.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(rec.chunks))
	}
	if got := len(rec.chunks[0].Data); got != 480 {
		t.Errorf("expected 480 archive bytes, got %d", got)
	}
	if rec.chunks[0].Track != trackCandidate {
		t.Errorf("expected candidate track")
	}
}

func TestRecordCandidateDropsFrameOnResampleFailure(t *testing.T) {
	rec := newTestRecorder(t)
	rec.resampler = ratioResampler{err: errors.New("converter unavailable")}

	rec.RecordCandidate(pcm(0x01, 320))

	if len(rec.chunks) != 0 {
		t.Fatalf("unconvertible frame must be dropped, got %d chunks", len(rec.chunks))
	}
}

func TestRecordEmptyDataIsIgnored(t *testing.T) {
	rec := newTestRecorder(t)
	rec.RecordCandidate(nil)
	rec.RecordCandidate([]byte{})
	rec.RecordAgent(nil)

	if len(rec.chunks) != 0 {
		t.Fatalf("expected 0 chunks, got %d", len(rec.chunks))
	}
}

func TestAgentBurstChunksPreserveOrder(t *testing.T) {
	rec := newTestRecorder(t)
	rec.Start()
	for i := 0; i < 5; i++ {
		rec.RecordAgent(pcm(byte(i+1), 320))
	}
	if len(rec.chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(rec.chunks))
	}
	offset := 0
	for i, c := range rec.chunks {
		if c.Data[0] != byte(i+1) {
			t.Errorf("chunk %d: expected first byte %d, got %d", i, i+1, c.Data[0])
		}
		// Burst chunks pace from the cursor with no gaps.
		if c.ByteOffset != offset {
			t.Errorf("chunk %d: expected offset %d, got %d", i, offset, c.ByteOffset)
		}
		offset += len(c.Data)
	}
}

func TestPushCopiesData(t *testing.T) {
	rec := newTestRecorder(t)
	data := pcm(0xFF, 100)
	rec.RecordAgent(data)
	data[0] = 0x00
	if rec.chunks[0].Data[0] != 0xFF {
		t.Error("push must copy data")
	}
}

func TestMixdownBeforeStartFails(t *testing.T) {
	rec := newTestRecorder(t)
	if _, err := rec.Mixdown(); err == nil {
		t.Fatal("expected error for recorder that never started")
	}
}

func TestMixdownSumsTracksWithClamping(t *testing.T) {
	rec := newTestRecorder(t)
	rec.Start()

	// One sample per track at the same offset: 20000 + 20000 clamps at 32767.
	loud := make([]byte, 2)
	binary.LittleEndian.PutUint16(loud, uint16(int16(20000)))
	rec.RecordAgent(loud)
	rec.chunks = append(rec.chunks, chunk{ByteOffset: 0, Data: append([]byte(nil), loud...), Track: trackCandidate})

	pcmData, err := rec.Mixdown()
	if err != nil {
		t.Fatalf("Mixdown: %v", err)
	}
	if got := int16(binary.LittleEndian.Uint16(pcmData)); got != 32767 {
		t.Errorf("expected clamped sample 32767, got %d", got)
	}
}

func TestMixdownFillsGapsWithSilence(t *testing.T) {
	rec := newTestRecorder(t)
	rec.Start()
	rec.RecordAgent(pcm(0x22, 200))
	// Candidate chunk placed past the agent chunk.
	rec.chunks = append(rec.chunks, chunk{ByteOffset: 400, Data: pcm(0x11, 100), Track: trackCandidate})

	pcmData, err := rec.Mixdown()
	if err != nil {
		t.Fatalf("Mixdown: %v", err)
	}
	if len(pcmData) != 500 {
		t.Fatalf("expected 500 bytes, got %d", len(pcmData))
	}
	for i := 200; i < 400; i++ {
		if pcmData[i] != 0x00 {
			t.Fatalf("byte %d: expected silence, got 0x%02x", i, pcmData[i])
		}
	}
}

func TestWAVHeader(t *testing.T) {
	wav := createWAVFile(pcm(0x01, 4800))
	if len(wav) != 44+4800 {
		t.Fatalf("expected %d bytes, got %d", 44+4800, len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("WAV missing RIFF/WAVE header")
	}
	if sr := binary.LittleEndian.Uint32(wav[24:28]); sr != archiveConfig.SampleRate {
		t.Errorf("sample rate: got %d, want %d", sr, archiveConfig.SampleRate)
	}
	if sz := binary.LittleEndian.Uint32(wav[40:44]); sz != 4800 {
		t.Errorf("data size: got %d", sz)
	}
}
