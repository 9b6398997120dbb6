package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/junsooki/rscapture/internal/app"
	"github.com/junsooki/rscapture/internal/capture"
	"github.com/junsooki/rscapture/internal/config"
	"github.com/junsooki/rscapture/internal/device"
	"github.com/junsooki/rscapture/internal/display"
	"github.com/junsooki/rscapture/internal/encoder"
	"github.com/junsooki/rscapture/internal/peer"
	"github.com/junsooki/rscapture/internal/signaling"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return app.ExitUsage
	}

	log.Printf("rscapture starting")
	log.Printf("  Device:     %s (compiled: %v)", cfg.Device, device.Backends())
	log.Printf("  Output:     %s", cfg.OutDir)
	log.Printf("  Preview:    %v", cfg.Preview)
	log.Printf("  Timeout:    %s", cfg.FrameTimeout)
	if cfg.SignalingURL != "" {
		log.Printf("  Signaling:  %s", cfg.SignalingURL)
		log.Printf("  Camera ID:  %s", cfg.CameraID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	devices, err := device.Open(cfg.Device, device.Options{
		V4L2Path:  cfg.V4L2Path,
		SimFrames: cfg.SimFrames,
	})
	if err != nil {
		if device.KindOf(err) == device.NoDevice {
			fmt.Println("There are 0 connected RealSense device(s).")
			return app.ExitNoDevice
		}
		log.Printf("open %s backend: %v", cfg.Device, err)
		var de *device.Error
		if errors.As(err, &de) {
			return app.ExitDeviceError
		}
		return app.ExitUsage
	}
	defer devices.Close()

	var disp display.Display = display.Headless{}
	if cfg.Preview {
		disp = newPreview("color")
	}

	a := &app.App{
		Devices:      devices,
		Display:      disp,
		Out:          os.Stdout,
		OutDir:       cfg.OutDir,
		FrameTimeout: cfg.FrameTimeout,
	}

	if cfg.SignalingURL != "" {
		relay, closeRemote, err := startRemotePreview(ctx, cfg)
		if err != nil {
			// Local capture does not depend on the remote preview.
			log.Printf("remote preview disabled: %v", err)
		} else {
			defer closeRemote()
			a.Extra = append(a.Extra, relay)
		}
	}

	code := a.Run(ctx)
	log.Printf("Shutting down (exit %d)", code)
	return code
}

// startRemotePreview registers as a camera with the signaling server and
// returns a sink relaying preview frames to whichever viewer connects.
func startRemotePreview(ctx context.Context, cfg *config.Config) (capture.Sink, func(), error) {
	// Offers and candidates only arrive after Connect returns, by which
	// time pub is set.
	var pub *peer.Publisher
	sig := signaling.NewClient(cfg.SignalingURL, cfg.CameraID, signaling.ClientTypeCamera, signaling.Handler{
		OnOffer: func(from string, payload json.RawMessage) {
			log.Printf("Received offer from %s", from)
			if err := pub.HandleOffer(from, payload); err != nil {
				log.Printf("handle offer: %v", err)
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if err := pub.HandleICECandidate(from, payload); err != nil {
				log.Printf("handle ICE candidate: %v", err)
			}
		},
		OnError: func(msg string) {
			log.Printf("signaling error: %s", msg)
		},
	})
	pub = peer.NewPublisher(sig)

	if err := sig.Connect(ctx); err != nil {
		return nil, nil, err
	}
	log.Printf("Registered with signaling server. Viewers can connect to: %s", cfg.CameraID)

	relay := capture.NewRelaySink(cfg.PreviewEvery, encoder.NewJPEGEncoder(cfg.Quality), pub)
	relayCtx, cancel := context.WithCancel(ctx)
	go relay.Run(relayCtx)

	return relay, func() {
		cancel()
		pub.Close()
		sig.Close()
	}, nil
}
