// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_transport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
)

const (
	// Context frames are heavily downscaled; the agent only needs enough
	// pixels to see the candidate, not a full camera feed.
	FrameWidth  = 320
	FrameHeight = 180

	frameJPEGQuality = 60
)

// EncodeFrame downscales a camera snapshot to the context frame size and
// returns it as a base64 JPEG payload.
func EncodeFrame(img image.Image) (LiveImageData, error) {
	if img == nil {
		return LiveImageData{}, fmt.Errorf("nil snapshot")
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return LiveImageData{}, fmt.Errorf("empty snapshot: %v", bounds)
	}

	scaled := downscale(img, FrameWidth, FrameHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return LiveImageData{}, fmt.Errorf("jpeg encode: %w", err)
	}

	return LiveImageData{
		Payload:  base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType: "image/jpeg",
		Width:    FrameWidth,
		Height:   FrameHeight,
	}, nil
}

// downscale resizes with nearest-neighbor sampling. Quality is secondary to
// per-second encode cost here.
func downscale(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcY := bounds.Min.Y + y*bounds.Dy()/height
		for x := 0; x < width; x++ {
			srcX := bounds.Min.X + x*bounds.Dx()/width
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}
