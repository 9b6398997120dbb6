// Package app wires a device, a display and the capture loop into one run
// of the capture utility and maps its outcome to a process exit code.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/junsooki/rscapture/internal/capture"
	"github.com/junsooki/rscapture/internal/device"
	"github.com/junsooki/rscapture/internal/display"
	"github.com/junsooki/rscapture/internal/encoder"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitDeviceError = 1
	ExitNoDevice    = 2
	ExitIOError     = 3
	ExitUsage       = 64
)

// App is one capture session against the first device of Devices.
type App struct {
	Devices device.Context
	Display display.Display
	// Out receives the diagnostic lines and one line per written frame.
	Out          io.Writer
	OutDir       string
	FrameTimeout time.Duration
	// Extra sinks run after the display and file sinks.
	Extra []capture.Sink
}

// Run captures until ctx is cancelled, the preview window is closed or the
// device fails, and returns the exit code.
func (a *App) Run(ctx context.Context) int {
	n, err := a.Devices.DeviceCount()
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.Out, "There are %d connected RealSense device(s).\n", n)
	if n == 0 {
		return ExitNoDevice
	}

	dev, err := a.Devices.Device(0)
	if err != nil {
		return a.fail(err)
	}
	info, err := dev.Info()
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.Out, "\nUsing device 0, an %s\n", info.Name)
	fmt.Fprintf(a.Out, "Serial number: %s\n", info.Serial)
	fmt.Fprintf(a.Out, "Firmware version: %s\n", info.FirmwareVersion)
	fmt.Fprintf(a.Out, "Depth scale : %g\n", info.DepthScale)

	stream := device.ColorVGA
	if err := dev.EnableStream(stream); err != nil {
		return a.fail(err)
	}
	if err := dev.Start(); err != nil {
		return a.fail(err)
	}
	defer func() {
		if err := dev.Stop(); err != nil {
			log.Printf("stop device: %v", err)
		}
	}()

	if err := os.MkdirAll(a.OutDir, 0o755); err != nil {
		log.Printf("create output directory: %v", err)
		return ExitIOError
	}

	sinks := []capture.Sink{
		capture.SinkFunc(func(_ string, img *capture.BGR) error {
			if err := a.Display.Show(img); err != nil {
				return fmt.Errorf("display: %w", err)
			}
			return nil
		}),
		capture.NewFileSink(encoder.NewPNGEncoder(png.BestSpeed)),
	}
	sinks = append(sinks, a.Extra...)

	loop := &capture.Loop{
		Device:  dev,
		Stream:  stream,
		Namer:   capture.NewNamer(a.OutDir),
		Sinks:   sinks,
		Out:     a.Out,
		Timeout: a.FrameTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Windowing toolkits want the main goroutine, so the loop gets its own.
	// It stays on one OS thread for backends that pump events from Show.
	loopErr := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		err := loop.Run(ctx)
		if c, ok := a.Display.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				log.Printf("close display: %v", cerr)
			}
		}
		cancel()
		loopErr <- err
	}()

	displayErr := a.Display.Run(ctx)
	cancel()
	err = <-loopErr

	switch {
	case err != nil:
		return a.fail(err)
	case displayErr != nil:
		log.Printf("display: %v", displayErr)
		return ExitIOError
	}
	return ExitOK
}

// fail reports err and picks the exit code for it.
func (a *App) fail(err error) int {
	var de *device.Error
	if errors.As(err, &de) {
		fmt.Fprintf(a.Out, "device error was thrown when calling %s(%s)\n%s\n", de.Op, de.Args, de.Message())
		if de.Kind == device.NoDevice {
			return ExitNoDevice
		}
		return ExitDeviceError
	}
	log.Printf("capture failed: %v", err)
	return ExitIOError
}
