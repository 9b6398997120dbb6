package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startedSim(t *testing.T, opts SimOptions) Device {
	t.Helper()
	dev, err := NewSim(opts).Device(0)
	if err != nil {
		t.Fatalf("Device(0): %v", err)
	}
	if err := dev.EnableStream(ColorVGA); err != nil {
		t.Fatalf("EnableStream: %v", err)
	}
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return dev
}

func TestStreamConfigString(t *testing.T) {
	if got, want := ColorVGA.String(), "color, 640, 480, bgr8, 60"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := ColorVGA.FrameSize(); got != 640*480*3 {
		t.Fatalf("FrameSize() = %d", got)
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := error(&Error{Kind: FrameTimeout, Op: "wait_for_frames", Args: "timeout_ms:10", Err: errors.New("late")})
	wrapped := errors.Join(errors.New("capture"), err)

	if !errors.Is(wrapped, FrameTimeout) {
		t.Fatal("errors.Is(FrameTimeout) = false")
	}
	if errors.Is(wrapped, DeviceDisconnected) {
		t.Fatal("errors.Is(DeviceDisconnected) = true")
	}
	if got := KindOf(wrapped); got != FrameTimeout {
		t.Fatalf("KindOf = %v", got)
	}
	if got := KindOf(errors.New("plain")); got != Unknown {
		t.Fatalf("KindOf(plain) = %v", got)
	}
	if got, want := err.Error(), "wait_for_frames(timeout_ms:10): late"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestSimDeviceOutOfRange(t *testing.T) {
	_, err := NewSim(SimOptions{Devices: 0}).Device(0)
	if !errors.Is(err, NoDevice) {
		t.Fatalf("err = %v, want NoDevice", err)
	}
}

func TestSimRejectsConfiguration(t *testing.T) {
	dev, _ := NewSim(SimOptions{Devices: 1, RejectStreams: true}).Device(0)
	err := dev.EnableStream(ColorVGA)
	var de *Error
	if !errors.As(err, &de) || de.Kind != ConfigurationRejected {
		t.Fatalf("err = %v, want ConfigurationRejected", err)
	}
	if de.Op != "enable_stream" || de.Args != ColorVGA.String() {
		t.Fatalf("op/args = %q/%q", de.Op, de.Args)
	}
}

func TestSimRejectsReconfigureWhileStreaming(t *testing.T) {
	dev := startedSim(t, SimOptions{Devices: 1})
	if err := dev.EnableStream(ColorVGA); !errors.Is(err, ConfigurationRejected) {
		t.Fatalf("err = %v, want ConfigurationRejected", err)
	}
}

func TestSimDeliversThenDisconnects(t *testing.T) {
	dev := startedSim(t, SimOptions{Devices: 1, Frames: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := dev.WaitForFrames(ctx, 0); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		data, err := dev.FrameData(StreamColor)
		if err != nil {
			t.Fatalf("FrameData %d: %v", i, err)
		}
		if len(data) != ColorVGA.FrameSize() {
			t.Fatalf("len(data) = %d", len(data))
		}
	}

	err := dev.WaitForFrames(ctx, 0)
	var de *Error
	if !errors.As(err, &de) || de.Kind != DeviceDisconnected || de.Op != "wait_for_frames" {
		t.Fatalf("third wait err = %v", err)
	}
}

func TestSimFrameBufferIsReused(t *testing.T) {
	dev := startedSim(t, SimOptions{Devices: 1})
	ctx := context.Background()

	if err := dev.WaitForFrames(ctx, 0); err != nil {
		t.Fatal(err)
	}
	first, _ := dev.FrameData(StreamColor)
	red := first[2]

	if err := dev.WaitForFrames(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if first[2] == red {
		t.Fatal("borrowed buffer was not overwritten by the next frame")
	}
}

func TestSimTimeoutAndCancel(t *testing.T) {
	dev := startedSim(t, SimOptions{Devices: 1, Stall: true})

	err := dev.WaitForFrames(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, FrameTimeout) {
		t.Fatalf("err = %v, want FrameTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dev.WaitForFrames(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestYUYVToBGR(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		want []byte
	}{
		{"black", []byte{16, 128, 16, 128}, []byte{0, 0, 0, 0, 0, 0}},
		{"white", []byte{235, 128, 235, 128}, []byte{255, 255, 255, 255, 255, 255}},
		{"clamped", []byte{255, 128, 0, 128}, []byte{255, 255, 255, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, len(tt.want))
			if err := yuyvToBGR(dst, tt.src); err != nil {
				t.Fatal(err)
			}
			for i := range dst {
				if dst[i] != tt.want[i] {
					t.Fatalf("dst = %v, want %v", dst, tt.want)
				}
			}
		})
	}

	if err := yuyvToBGR(make([]byte, 2), []byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error for short destination")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("nope", Options{}); err == nil {
		t.Fatal("expected error")
	}
	ctx, err := Open("sim", Options{SimFrames: 1})
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := ctx.DeviceCount(); n != 1 {
		t.Fatalf("DeviceCount = %d", n)
	}
}
