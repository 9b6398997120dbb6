package device

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blackjack/webcam"
)

// V4L2 pixel formats (fourcc, little endian).
const (
	fourccBGR3 webcam.PixelFormat = 0x33524742
	fourccYUYV webcam.PixelFormat = 0x56595559
)

// waitSeconds is the granularity of the driver wait; the context is
// re-checked between waits.
const waitSeconds = 1

func init() {
	Register("v4l2", openV4L2)
}

// devDir is where video4linux nodes live.
const devDir = "/dev"

// v4l2Context exposes the UVC color node of a camera through
// video4linux. It has no access to depth, so DepthScale is always zero.
type v4l2Context struct {
	paths []string
}

func openV4L2(opts Options) (Context, error) {
	if opts.V4L2Path != "" {
		return &v4l2Context{paths: []string{opts.V4L2Path}}, nil
	}
	paths, err := colorNodes(devDir, nodeFormats)
	if err != nil {
		return nil, newError(Unknown, "list_devices", devDir, err)
	}
	return &v4l2Context{paths: paths}, nil
}

// formatLister reports the pixel formats a video node offers.
type formatLister func(path string) (map[webcam.PixelFormat]string, error)

func nodeFormats(path string) (map[webcam.PixelFormat]string, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}
	defer cam.Close()
	return cam.GetSupportedFormats(), nil
}

// colorNodes returns the video nodes under dir that deliver BGR3 or YUYV,
// ordered by node number. A RealSense registers depth, infrared and
// metadata nodes next to its color node; only the color node is a device
// for this backend.
func colorNodes(dir string, listFormats formatLister) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "video*"))
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool {
		return nodeNumber(paths[i]) < nodeNumber(paths[j])
	})

	var nodes []string
	for _, path := range paths {
		formats, err := listFormats(path)
		if err != nil {
			// Busy, or not a capture node.
			continue
		}
		if formats[fourccBGR3] != "" || formats[fourccYUYV] != "" {
			nodes = append(nodes, path)
		}
	}
	return nodes, nil
}

// nodeNumber extracts N from .../videoN, so video10 sorts after video2.
func nodeNumber(path string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "video"))
	if err != nil {
		return -1
	}
	return n
}

func (c *v4l2Context) DeviceCount() (int, error) {
	return len(c.paths), nil
}

func (c *v4l2Context) Device(index int) (Device, error) {
	if index < 0 || index >= len(c.paths) {
		return nil, newError(NoDevice, "get_device", fmt.Sprintf("index:%d", index),
			fmt.Errorf("device index %d out of range (have %d devices)", index, len(c.paths)))
	}
	path := c.paths[index]
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, newError(NoDevice, "open", path, err)
	}
	return &v4l2Device{cam: cam, path: path, name: "UVC camera " + filepath.Base(path)}, nil
}

func (c *v4l2Context) Close() error { return nil }

type v4l2Device struct {
	cam  *webcam.Webcam
	path string
	name string

	mu        sync.Mutex
	cfg       *StreamConfig
	pixfmt    webcam.PixelFormat
	streaming bool
	raw       []byte
	bgr       []byte
}

func (d *v4l2Device) Info() (Info, error) {
	return Info{Name: d.name, Serial: d.path, FirmwareVersion: "n/a"}, nil
}

func (d *v4l2Device) EnableStream(cfg StreamConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	args := cfg.String()
	if d.streaming {
		return newError(ConfigurationRejected, "enable_stream", args, errors.New("cannot reconfigure a streaming device"))
	}
	if cfg.Stream != StreamColor || cfg.Format != FormatBGR8 {
		return newError(ConfigurationRejected, "enable_stream", args, errors.New("v4l2 backend only serves bgr8 color"))
	}

	formats := d.cam.GetSupportedFormats()
	var want webcam.PixelFormat
	switch {
	case formats[fourccBGR3] != "":
		want = fourccBGR3
	case formats[fourccYUYV] != "":
		want = fourccYUYV
	default:
		return newError(ConfigurationRejected, "set_image_format", args, fmt.Errorf("%s offers neither BGR3 nor YUYV", d.path))
	}

	got, w, h, err := d.cam.SetImageFormat(want, uint32(cfg.Width), uint32(cfg.Height))
	if err != nil {
		return newError(ConfigurationRejected, "set_image_format", args, err)
	}
	if got != want || int(w) != cfg.Width || int(h) != cfg.Height {
		return newError(ConfigurationRejected, "set_image_format", args,
			fmt.Errorf("driver negotiated %dx%d fourcc %08x", w, h, uint32(got)))
	}
	if err := d.cam.SetFramerate(float32(cfg.FPS)); err != nil {
		return newError(ConfigurationRejected, "set_framerate", fmt.Sprintf("%d", cfg.FPS), err)
	}

	d.cfg = &cfg
	d.pixfmt = got
	if got == fourccYUYV {
		d.bgr = make([]byte, cfg.FrameSize())
	}
	return nil
}

func (d *v4l2Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil {
		return newError(ConfigurationRejected, "start", d.path, errors.New("no stream enabled"))
	}
	if err := d.cam.StartStreaming(); err != nil {
		return newError(ConfigurationRejected, "start_streaming", d.path, err)
	}
	d.streaming = true
	return nil
}

func (d *v4l2Device) WaitForFrames(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streaming {
		return newError(Unknown, "wait_for_frame", d.path, errors.New("device not started"))
	}

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.cam.WaitForFrame(waitSeconds)
		switch err.(type) {
		case nil:
			frame, err := d.cam.ReadFrame()
			if err != nil {
				return newError(DeviceDisconnected, "read_frame", d.path, err)
			}
			if len(frame) == 0 {
				continue
			}
			d.raw = frame
			return nil
		case *webcam.Timeout:
			if timeout > 0 && time.Since(start) >= timeout {
				return newError(FrameTimeout, "wait_for_frame", fmt.Sprintf("%s, timeout_ms:%d", d.path, timeout.Milliseconds()),
					fmt.Errorf("frame didn't arrive within %s", timeout))
			}
		default:
			return newError(DeviceDisconnected, "wait_for_frame", d.path, err)
		}
	}
}

func (d *v4l2Device) FrameData(s Stream) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil || s != d.cfg.Stream {
		return nil, newError(Unknown, "get_frame_data", s.String(), fmt.Errorf("stream %s not enabled", s))
	}
	if d.raw == nil {
		return nil, newError(Unknown, "get_frame_data", s.String(), errors.New("no frame received yet"))
	}
	if d.pixfmt == fourccBGR3 {
		return d.raw, nil
	}
	if err := yuyvToBGR(d.bgr, d.raw); err != nil {
		return nil, newError(Unknown, "get_frame_data", s.String(), err)
	}
	return d.bgr, nil
}

func (d *v4l2Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.streaming {
		err = d.cam.StopStreaming()
		d.streaming = false
	}
	if cerr := d.cam.Close(); err == nil {
		err = cerr
	}
	return err
}
