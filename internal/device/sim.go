package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

func init() {
	Register("sim", func(opts Options) (Context, error) {
		return NewSim(SimOptions{
			Devices:       1,
			Frames:        opts.SimFrames,
			FrameInterval: time.Second / 60,
		}), nil
	})
}

// SimOptions shapes the behaviour of a simulated camera.
type SimOptions struct {
	// Devices is the number of devices the context reports.
	Devices int
	// Frames is delivered before WaitForFrames reports a disconnect.
	// Zero means unlimited.
	Frames int
	// FrameInterval paces frame delivery. Zero delivers immediately.
	FrameInterval time.Duration
	// RejectStreams makes EnableStream fail as an unsupported mode.
	RejectStreams bool
	// Stall makes WaitForFrames never deliver.
	Stall bool
}

// SimContext is an in-process stand-in for a camera SDK context. It
// produces a moving gradient test pattern.
type SimContext struct {
	opts SimOptions
}

// NewSim creates a simulated context.
func NewSim(opts SimOptions) *SimContext {
	return &SimContext{opts: opts}
}

func (c *SimContext) DeviceCount() (int, error) {
	return c.opts.Devices, nil
}

func (c *SimContext) Device(index int) (Device, error) {
	if index < 0 || index >= c.opts.Devices {
		return nil, newError(NoDevice, "get_device", fmt.Sprintf("index:%d", index),
			fmt.Errorf("device index %d out of range (have %d devices)", index, c.opts.Devices))
	}
	return &simDevice{opts: c.opts, index: index}, nil
}

func (c *SimContext) Close() error { return nil }

type simDevice struct {
	opts  SimOptions
	index int

	mu        sync.Mutex
	cfg       *StreamConfig
	started   bool
	delivered int
	buf       []byte
}

func (d *simDevice) Info() (Info, error) {
	return Info{
		Name:            "Simulated Camera",
		Serial:          fmt.Sprintf("SIM%06d", d.index),
		FirmwareVersion: "0.0.0.1",
		DepthScale:      0.001,
	}, nil
}

func (d *simDevice) EnableStream(cfg StreamConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return newError(ConfigurationRejected, "enable_stream", cfg.String(),
			errors.New("cannot reconfigure a streaming device"))
	}
	if d.opts.RejectStreams {
		return newError(ConfigurationRejected, "enable_stream", cfg.String(),
			errors.New("unsupported stream mode"))
	}
	if cfg.Stream != StreamColor || cfg.Format != FormatBGR8 {
		return newError(ConfigurationRejected, "enable_stream", cfg.String(),
			fmt.Errorf("sim camera only produces %s %s", StreamColor, FormatBGR8))
	}
	d.cfg = &cfg
	d.buf = make([]byte, cfg.FrameSize())
	return nil
}

func (d *simDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil {
		return newError(ConfigurationRejected, "start", "", errors.New("no stream enabled"))
	}
	d.started = true
	return nil
}

func (d *simDevice) WaitForFrames(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	started := d.started
	exhausted := d.opts.Frames > 0 && d.delivered >= d.opts.Frames
	d.mu.Unlock()

	if !started {
		return newError(Unknown, "wait_for_frames", "", errors.New("device not started"))
	}
	if exhausted {
		return newError(DeviceDisconnected, "wait_for_frames", "",
			errors.New("frame didn't arrive: device disconnected"))
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	var tick <-chan time.Time
	switch {
	case d.opts.Stall:
		// never ready
	case d.opts.FrameInterval > 0:
		t := time.NewTimer(d.opts.FrameInterval)
		defer t.Stop()
		tick = t.C
	default:
		ready := make(chan time.Time, 1)
		ready <- time.Time{}
		tick = ready
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline:
		return newError(FrameTimeout, "wait_for_frames", fmt.Sprintf("timeout_ms:%d", timeout.Milliseconds()),
			fmt.Errorf("frame didn't arrive within %s", timeout))
	case <-tick:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.paint(d.delivered)
	d.delivered++
	return nil
}

// paint overwrites the shared buffer in place, so a caller that keeps an
// old slice sees it change.
func (d *simDevice) paint(seq int) {
	w, h := d.cfg.Width, d.cfg.Height
	shift := seq * 4
	for y := 0; y < h; y++ {
		row := d.buf[y*w*3:]
		for x := 0; x < w; x++ {
			i := x * 3
			row[i] = uint8((x + shift) * 255 / w)   // B
			row[i+1] = uint8((y + shift) * 255 / h) // G
			row[i+2] = uint8(seq)                   // R
		}
	}
}

func (d *simDevice) FrameData(s Stream) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil || s != d.cfg.Stream {
		return nil, newError(Unknown, "get_frame_data", s.String(), fmt.Errorf("stream %s not enabled", s))
	}
	if d.delivered == 0 {
		return nil, newError(Unknown, "get_frame_data", s.String(), errors.New("no frame received yet"))
	}
	return d.buf, nil
}

func (d *simDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}
