// Command agentstub serves a scripted shopping agent speaking the same
// stream protocol as the real one, for local runs and demos.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bowerhall/roomchat/internal/agentstub"
	"github.com/bowerhall/roomchat/internal/config"
	"github.com/bowerhall/roomchat/internal/logger"
	"github.com/joho/godotenv"
)

func init() {
	godotenv.Load()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	stub := agentstub.New(agentstub.WithFrameDelay(cfg.Stub.FrameDelay))

	server := &http.Server{
		Addr:        cfg.Stub.Addr,
		Handler:     stub.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("agentstub starting", "addr", cfg.Stub.Addr, "frame_delay", cfg.Stub.FrameDelay)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	server.Shutdown(ctx)
}
