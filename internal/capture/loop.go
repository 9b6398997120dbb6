// Package capture runs the capture-process-persist loop: wait for a frame,
// wrap it, name it, show it, write it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/junsooki/rscapture/internal/device"
)

// Loop pulls frames from one started device and hands each to its sinks in
// order. Everything runs on the caller's goroutine; the next wait starts
// only after the last sink returned, so slow sinks throttle capture.
type Loop struct {
	Device device.Device
	Stream device.StreamConfig
	Namer  *Namer
	Sinks  []Sink
	// Out receives one line per frame with the output path.
	Out io.Writer
	// Timeout bounds each wait. Zero waits forever.
	Timeout time.Duration
}

// Run loops until ctx is cancelled, which returns nil, or until the device
// or a sink fails. Device failures are returned as *device.Error.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := l.Device.WaitForFrames(ctx, l.Timeout); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}

		data, err := l.Device.FrameData(l.Stream.Stream)
		if err != nil {
			return err
		}
		frame := Frame{Width: l.Stream.Width, Height: l.Stream.Height, Data: data}
		img, err := frame.Image()
		if err != nil {
			return &device.Error{Kind: device.Unknown, Op: "get_frame_data", Args: l.Stream.Stream.String(), Err: err}
		}

		name := l.Namer.Next()
		fmt.Fprintln(l.Out, name)

		for _, s := range l.Sinks {
			if err := s.Consume(name, img); err != nil {
				return err
			}
		}
	}
}
