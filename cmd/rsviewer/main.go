package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/junsooki/rscapture/internal/config"
	"github.com/junsooki/rscapture/internal/decoder"
	"github.com/junsooki/rscapture/internal/display/ebitenview"
	"github.com/junsooki/rscapture/internal/peer"
	"github.com/junsooki/rscapture/internal/signaling"
)

func main() {
	cfg, err := config.ParseViewer(os.Args[1:])
	if err != nil {
		log.Fatal("Usage: rsviewer -signaling <url> -camera <camera-id>")
	}

	log.Printf("rsviewer starting")
	log.Printf("  Viewer ID:  %s", cfg.ViewerID)
	log.Printf("  Signaling:  %s", cfg.SignalingURL)
	log.Printf("  Camera:     %s", cfg.CameraID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dec := decoder.NewJPEGDecoder()
	win := ebitenview.New("color (" + cfg.CameraID + ")")

	// view is assigned before the signaling read goroutine starts and never
	// reassigned, so the callbacks below can use it without locking.
	var view *peer.Viewer
	sig := signaling.NewClient(cfg.SignalingURL, cfg.ViewerID, signaling.ClientTypeViewer, signaling.Handler{
		OnAnswer: func(from string, payload json.RawMessage) {
			if err := view.HandleAnswer(payload); err != nil {
				log.Printf("handle answer: %v", err)
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if err := view.HandleICECandidate(payload); err != nil {
				log.Printf("handle ICE candidate: %v", err)
			}
		},
		OnCameraDisconnected: func(cameraID string) {
			if cameraID == cfg.CameraID {
				log.Printf("camera %s disconnected", cameraID)
				cancel()
			}
		},
		OnError: func(msg string) {
			log.Printf("signaling error: %s", msg)
		},
	})

	view, err = peer.NewViewer(sig, cfg.CameraID)
	if err != nil {
		log.Fatalf("create viewer peer: %v", err)
	}
	defer view.Close()

	view.Transport().OnFrame(func(data []byte) {
		img, err := dec.Decode(data)
		if err != nil {
			return
		}
		win.SetFrame(img)
	})

	if err := sig.Connect(ctx); err != nil {
		log.Fatalf("signaling connect: %v", err)
	}
	defer sig.Close()
	log.Println("Registered with signaling server")

	if err := view.Connect(); err != nil {
		log.Fatalf("viewer connect: %v", err)
	}

	go func() {
		select {
		case <-sig.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	// Ebitengine RunGame must be on the main goroutine.
	if err := win.Run(ctx); err != nil {
		log.Printf("display: %v", err)
	}
}
