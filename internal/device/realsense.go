//go:build realsense && cgo

package device

/*
#cgo LDFLAGS: -lrealsense2
#include <stdlib.h>
#include <librealsense2/rs.h>
#include <librealsense2/h/rs_config.h>
#include <librealsense2/h/rs_frame.h>
#include <librealsense2/h/rs_option.h>
#include <librealsense2/h/rs_pipeline.h>
#include <librealsense2/h/rs_sensor.h>

static rs2_context* new_context(rs2_error** e) {
    return rs2_create_context(RS2_API_VERSION, e);
}

// depth_units walks the sensors of dev and returns the depth unit of the
// first depth sensor, or 0 when there is none.
static float depth_units(const rs2_device* dev, rs2_error** e) {
    float units = 0;
    rs2_sensor_list* sensors = rs2_query_sensors(dev, e);
    if (*e) {
        return 0;
    }
    int count = rs2_get_sensors_count(sensors, e);
    for (int i = 0; !*e && i < count; i++) {
        rs2_sensor* s = rs2_create_sensor(sensors, i, e);
        if (*e) {
            break;
        }
        if (rs2_is_sensor_extendable_to(s, RS2_EXTENSION_DEPTH_SENSOR, e) && !*e) {
            units = rs2_get_option((const rs2_options*)s, RS2_OPTION_DEPTH_UNITS, e);
            rs2_delete_sensor(s);
            break;
        }
        rs2_delete_sensor(s);
    }
    rs2_delete_sensor_list(sensors);
    return units;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"
)

func init() {
	Register("realsense", openRealSense)
}

// rsError converts a librealsense error into a *Error and frees it.
func rsError(kind ErrorKind, e *C.rs2_error) *Error {
	defer C.rs2_free_error(e)
	switch C.rs2_get_librealsense_exception_type(e) {
	case C.RS2_EXCEPTION_TYPE_CAMERA_DISCONNECTED:
		kind = DeviceDisconnected
	case C.RS2_EXCEPTION_TYPE_DEVICE_IN_RECOVERY_MODE:
		kind = NoDevice
	}
	return &Error{
		Kind: kind,
		Op:   C.GoString(C.rs2_get_failed_function(e)),
		Args: C.GoString(C.rs2_get_failed_args(e)),
		Err:  errors.New(C.GoString(C.rs2_get_error_message(e))),
	}
}

type rsContext struct {
	ctx  *C.rs2_context
	list *C.rs2_device_list
}

func openRealSense(Options) (Context, error) {
	var e *C.rs2_error
	ctx := C.new_context(&e)
	if e != nil {
		return nil, rsError(Unknown, e)
	}
	list := C.rs2_query_devices(ctx, &e)
	if e != nil {
		C.rs2_delete_context(ctx)
		return nil, rsError(Unknown, e)
	}
	return &rsContext{ctx: ctx, list: list}, nil
}

func (c *rsContext) DeviceCount() (int, error) {
	var e *C.rs2_error
	n := C.rs2_get_device_count(c.list, &e)
	if e != nil {
		return 0, rsError(Unknown, e)
	}
	return int(n), nil
}

func (c *rsContext) Device(index int) (Device, error) {
	var e *C.rs2_error
	dev := C.rs2_create_device(c.list, C.int(index), &e)
	if e != nil {
		return nil, rsError(NoDevice, e)
	}
	return &rsDevice{ctx: c.ctx, dev: dev}, nil
}

func (c *rsContext) Close() error {
	C.rs2_delete_device_list(c.list)
	C.rs2_delete_context(c.ctx)
	return nil
}

type rsDevice struct {
	ctx *C.rs2_context
	dev *C.rs2_device

	mu      sync.Mutex
	serial  string
	streams []StreamConfig
	pipe    *C.rs2_pipeline
	config  *C.rs2_config
	profile *C.rs2_pipeline_profile
	frames  *C.rs2_frame
}

func (d *rsDevice) info(field C.rs2_camera_info) (string, error) {
	var e *C.rs2_error
	s := C.rs2_get_device_info(d.dev, field, &e)
	if e != nil {
		return "", rsError(Unknown, e)
	}
	return C.GoString(s), nil
}

func (d *rsDevice) Info() (Info, error) {
	var (
		info Info
		err  error
	)
	if info.Name, err = d.info(C.RS2_CAMERA_INFO_NAME); err != nil {
		return info, err
	}
	if info.Serial, err = d.info(C.RS2_CAMERA_INFO_SERIAL_NUMBER); err != nil {
		return info, err
	}
	if info.FirmwareVersion, err = d.info(C.RS2_CAMERA_INFO_FIRMWARE_VERSION); err != nil {
		return info, err
	}
	d.serial = info.Serial

	var e *C.rs2_error
	units := C.depth_units(d.dev, &e)
	if e != nil {
		return info, rsError(Unknown, e)
	}
	info.DepthScale = float32(units)
	return info, nil
}

func rsStream(s Stream) C.rs2_stream {
	switch s {
	case StreamDepth:
		return C.RS2_STREAM_DEPTH
	case StreamInfrared:
		return C.RS2_STREAM_INFRARED
	}
	return C.RS2_STREAM_COLOR
}

func rsFormat(f Format) C.rs2_format {
	switch f {
	case FormatRGB8:
		return C.RS2_FORMAT_RGB8
	case FormatYUYV:
		return C.RS2_FORMAT_YUYV
	case FormatZ16:
		return C.RS2_FORMAT_Z16
	}
	return C.RS2_FORMAT_BGR8
}

func (d *rsDevice) EnableStream(cfg StreamConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipe != nil {
		return newError(ConfigurationRejected, "enable_stream", cfg.String(),
			errors.New("cannot reconfigure a streaming device"))
	}
	var e *C.rs2_error
	if d.config == nil {
		d.config = C.rs2_create_config(&e)
		if e != nil {
			return rsError(ConfigurationRejected, e)
		}
	}
	C.rs2_config_enable_stream(d.config, rsStream(cfg.Stream), -1,
		C.int(cfg.Width), C.int(cfg.Height), rsFormat(cfg.Format), C.int(cfg.FPS), &e)
	if e != nil {
		return rsError(ConfigurationRejected, e)
	}
	d.streams = append(d.streams, cfg)
	return nil
}

func (d *rsDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.config == nil {
		return newError(ConfigurationRejected, "start", "", errors.New("no stream enabled"))
	}
	var e *C.rs2_error
	if d.serial != "" {
		serial := C.CString(d.serial)
		C.rs2_config_enable_device(d.config, serial, &e)
		C.free(unsafe.Pointer(serial))
		if e != nil {
			return rsError(ConfigurationRejected, e)
		}
	}
	pipe := C.rs2_create_pipeline(d.ctx, &e)
	if e != nil {
		return rsError(Unknown, e)
	}
	profile := C.rs2_pipeline_start_with_config(pipe, d.config, &e)
	if e != nil {
		C.rs2_delete_pipeline(pipe)
		return rsError(ConfigurationRejected, e)
	}
	d.pipe = pipe
	d.profile = profile
	return nil
}

func (d *rsDevice) releaseFrames() {
	if d.frames != nil {
		C.rs2_release_frame(d.frames)
		d.frames = nil
	}
}

func (d *rsDevice) WaitForFrames(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipe == nil {
		return newError(Unknown, "wait_for_frames", "", errors.New("device not started"))
	}
	// The previous frame set is only valid until here.
	d.releaseFrames()

	start := time.Now()
	slice := C.uint(pollInterval / time.Millisecond)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			e      *C.rs2_error
			frames *C.rs2_frame
		)
		ok := C.rs2_pipeline_try_wait_for_frames(d.pipe, &frames, slice, &e)
		if e != nil {
			return rsError(DeviceDisconnected, e)
		}
		if ok != 0 {
			d.frames = frames
			return nil
		}
		if timeout > 0 && time.Since(start) >= timeout {
			return newError(FrameTimeout, "rs2_pipeline_wait_for_frames",
				fmt.Sprintf("timeout_ms:%d", timeout.Milliseconds()),
				fmt.Errorf("frame didn't arrive within %s", timeout))
		}
	}
}

func (d *rsDevice) FrameData(s Stream) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frames == nil {
		return nil, newError(Unknown, "get_frame_data", s.String(), errors.New("no frame received yet"))
	}

	var e *C.rs2_error
	count := C.rs2_embedded_frames_count(d.frames, &e)
	if e != nil {
		return nil, rsError(Unknown, e)
	}
	want := rsStream(s)
	for i := C.int(0); i < count; i++ {
		f := C.rs2_extract_frame(d.frames, i, &e)
		if e != nil {
			return nil, rsError(Unknown, e)
		}
		data, match, err := frameData(f, want)
		// The frame set keeps its own reference to f.
		C.rs2_release_frame(f)
		if err != nil {
			return nil, err
		}
		if match {
			return data, nil
		}
	}
	return nil, newError(Unknown, "get_frame_data", s.String(), fmt.Errorf("no %s frame in frame set", s))
}

// frameData returns the pixel memory of f when it belongs to stream want.
// The slice aliases librealsense memory owned by the current frame set.
func frameData(f *C.rs2_frame, want C.rs2_stream) ([]byte, bool, error) {
	var e *C.rs2_error
	profile := C.rs2_get_frame_stream_profile(f, &e)
	if e != nil {
		return nil, false, rsError(Unknown, e)
	}
	var (
		stream              C.rs2_stream
		format              C.rs2_format
		index, uid, framert C.int
	)
	C.rs2_get_stream_profile_data(profile, &stream, &format, &index, &uid, &framert, &e)
	if e != nil {
		return nil, false, rsError(Unknown, e)
	}
	if stream != want {
		return nil, false, nil
	}
	ptr := C.rs2_get_frame_data(f, &e)
	if e != nil {
		return nil, false, rsError(Unknown, e)
	}
	size := C.rs2_get_frame_data_size(f, &e)
	if e != nil {
		return nil, false, rsError(Unknown, e)
	}
	return unsafe.Slice((*byte)(ptr), int(size)), true, nil
}

func (d *rsDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseFrames()
	var err error
	if d.pipe != nil {
		var e *C.rs2_error
		C.rs2_pipeline_stop(d.pipe, &e)
		if e != nil {
			err = rsError(Unknown, e)
		}
		C.rs2_delete_pipeline_profile(d.profile)
		C.rs2_delete_pipeline(d.pipe)
		d.pipe, d.profile = nil, nil
	}
	if d.config != nil {
		C.rs2_delete_config(d.config)
		d.config = nil
	}
	C.rs2_delete_device(d.dev)
	return err
}
