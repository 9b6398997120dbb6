package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junsooki/rscapture/internal/config"
	"github.com/junsooki/rscapture/internal/signaling"
)

func main() {
	cfg, err := config.ParseSignal(os.Args[1:])
	if err != nil {
		os.Exit(64)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, signaling.NewServer())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("signaling server listening on %s%s", cfg.Addr, cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
}
