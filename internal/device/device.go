// Package device abstracts the camera SDK: enumeration, stream
// configuration and blocking frame delivery.
package device

import (
	"context"
	"fmt"
	"time"
)

// Stream identifies a typed channel of frames a device can produce.
type Stream int

const (
	StreamColor Stream = iota
	StreamDepth
	StreamInfrared
)

func (s Stream) String() string {
	switch s {
	case StreamColor:
		return "color"
	case StreamDepth:
		return "depth"
	case StreamInfrared:
		return "infrared"
	}
	return fmt.Sprintf("stream(%d)", int(s))
}

// Format is the pixel layout of a stream's frames.
type Format int

const (
	FormatBGR8 Format = iota
	FormatRGB8
	FormatYUYV
	FormatZ16
)

func (f Format) String() string {
	switch f {
	case FormatBGR8:
		return "bgr8"
	case FormatRGB8:
		return "rgb8"
	case FormatYUYV:
		return "yuyv"
	case FormatZ16:
		return "z16"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// BytesPerPixel returns the packed pixel size of the format.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatBGR8, FormatRGB8:
		return 3
	case FormatYUYV, FormatZ16:
		return 2
	}
	return 0
}

// StreamConfig describes one stream request.
type StreamConfig struct {
	Stream Stream
	Width  int
	Height int
	Format Format
	FPS    int
}

// ColorVGA is the color stream this tool captures: 640x480 BGR at 60 fps.
var ColorVGA = StreamConfig{
	Stream: StreamColor,
	Width:  640,
	Height: 480,
	Format: FormatBGR8,
	FPS:    60,
}

// FrameSize returns the number of bytes in one packed frame.
func (c StreamConfig) FrameSize() int {
	return c.Width * c.Height * c.Format.BytesPerPixel()
}

// String renders the configuration the way it is reported in device errors.
func (c StreamConfig) String() string {
	return fmt.Sprintf("%s, %d, %d, %s, %d", c.Stream, c.Width, c.Height, c.Format, c.FPS)
}

// Info is the identity a device reports at startup.
type Info struct {
	Name            string
	Serial          string
	FirmwareVersion string
	// DepthScale converts raw depth units to meters. Zero when the device
	// has no depth sensor.
	DepthScale float32
}

// Context owns the handles to all connected devices of one backend.
type Context interface {
	DeviceCount() (int, error)
	Device(index int) (Device, error)
	Close() error
}

// Device is a session with one physical camera.
//
// FrameData returns memory owned by the device. It stays valid only until
// the next WaitForFrames call; callers that keep pixels longer must copy.
type Device interface {
	Info() (Info, error)
	EnableStream(cfg StreamConfig) error
	Start() error
	// WaitForFrames blocks until a new frame set is ready. A zero timeout
	// waits forever. It returns ctx.Err() when ctx is cancelled.
	WaitForFrames(ctx context.Context, timeout time.Duration) error
	FrameData(s Stream) ([]byte, error)
	Stop() error
}

// pollInterval bounds how long a backend blocks inside the SDK before
// re-checking the context.
const pollInterval = 100 * time.Millisecond
