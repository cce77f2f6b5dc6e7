// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_media

import (
	"context"
	"errors"
	"image"
)

// ErrDeviceUnavailable reports a missing or denied capture device. For the
// microphone this is a hard stop; for the camera the session degrades to
// audio-only.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// ErrUnsupportedFormat reports that no acceptable recording container is
// available. The live session can still run; recording is unavailable.
var ErrUnsupportedFormat = errors.New("unsupported recording format")

// Resolution is a requested video capture size.
type Resolution struct {
	Width  int
	Height int
}

var (
	Res720p  = Resolution{Width: 1280, Height: 720}
	Res1080p = Resolution{Width: 1920, Height: 1080}
)

// Constraints selects the devices and archive container for a session.
type Constraints struct {
	Audio      bool
	Video      bool
	Resolution Resolution
	// Container names the archive format; empty selects "wav", the only
	// container the recorder can render.
	Container string
}

// AudioSource delivers captured microphone audio as float32 frames at the
// capture rate (16kHz mono). The channel closes when the device is closed.
type AudioSource interface {
	Frames() <-chan []float32
	Close() error
}

// VideoSource exposes the current camera frame on demand.
type VideoSource interface {
	Snapshot(ctx context.Context) (image.Image, error)
	Close() error
}

// DeviceProvider is the platform boundary for device acquisition. The
// application shell injects a real implementation; tests inject fakes.
type DeviceProvider interface {
	OpenAudio(ctx context.Context) (AudioSource, error)
	OpenVideo(ctx context.Context, res Resolution) (VideoSource, error)
}

// PreviewSink is where the live preview renders. A sink can be replaced or
// reset by the shell at any time (view re-render); the manager re-binds it
// through the watchdog rather than leaving a frozen preview.
type PreviewSink interface {
	// Bind attaches the sink to the capture stream with the given id.
	Bind(streamID string)
	// BoundTo returns the stream id the sink currently renders, or "".
	BoundTo() string
}
