// Command roomchat is a terminal client for the room-styling shopping agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bowerhall/roomchat/internal/agentclient"
	"github.com/bowerhall/roomchat/internal/alerts"
	"github.com/bowerhall/roomchat/internal/config"
	"github.com/bowerhall/roomchat/internal/conversation"
	"github.com/bowerhall/roomchat/internal/logger"
	"github.com/bowerhall/roomchat/internal/metrics"
	"github.com/bowerhall/roomchat/internal/operational"
	"github.com/bowerhall/roomchat/internal/screenshot"
	"github.com/bowerhall/roomchat/internal/session"
	"github.com/bowerhall/roomchat/internal/shopping"
	"github.com/bowerhall/roomchat/internal/speech"
	"github.com/bowerhall/roomchat/internal/storage"
	"github.com/bowerhall/roomchat/internal/voice"
	"github.com/joho/godotenv"
)

func init() {
	godotenv.Load()
}

func main() {
	resume := flag.String("resume", "", "continue the recorded session with this key")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	rc, err := config.NewRuntimeConfig(cfg.DataDir, cfg)
	if err != nil {
		logger.Fatal("failed to load runtime config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := operational.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal("failed to open store", "error", err)
	}
	defer db.Close()

	transcripts, err := conversation.NewStore(db.DB())
	if err != nil {
		logger.Fatal("failed to prepare transcript store", "error", err)
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", m.Handler())
			server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadTimeout: 10 * time.Second}
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	alerter := alerts.New(func(msg string) {
		fmt.Fprintln(os.Stderr, msg)
	}, time.Minute)

	agent := agentclient.New(cfg.Agent.URL)
	if err := agent.Health(ctx); err != nil {
		alerter.Warn("agent", "not reachable at "+cfg.Agent.URL, err)
	}

	speechSvc, err := speech.Select(rc.Get("speech_provider"), agent, cfg.Voice.APIKey, rc.Get("tts_voice"))
	if err != nil {
		logger.Fatal("failed to set up speech", "error", err)
	}

	opts := []session.Option{
		session.WithRecorder(transcripts),
		session.WithMetrics(m),
		session.WithTurnTimeout(cfg.Agent.TurnTimeout),
		session.WithVoice(rc.VoiceEnabled()),
	}

	player, err := voice.NewExecPlayer(rc.Get("player"), "")
	if err != nil {
		logger.Warn("voice playback unavailable", "error", err)
	} else {
		queue := voice.NewQueue(speechSvc, player,
			voice.WithChunkTimeout(cfg.Voice.ChunkTimeout),
			voice.WithMetrics(m),
		)
		defer queue.Stop()
		opts = append(opts, session.WithSpeaker(queue))
	}

	if *resume != "" {
		history, err := transcripts.Load(ctx, *resume)
		if err != nil {
			logger.Fatal("failed to load transcript", "session", *resume, "error", err)
		}
		threadID, err := transcripts.LastThread(ctx, *resume)
		if err != nil {
			logger.Fatal("failed to load thread", "session", *resume, "error", err)
		}
		opts = append(opts,
			session.WithKey(*resume),
			session.WithThread(threadID),
			session.WithHistory(history),
		)
		logger.Info("resuming session", "session", *resume, "thread", threadID, "messages", len(history))
	}

	sess := session.New(agent, opts...)

	var archive *storage.Client
	if cfg.Storage.Enabled {
		archive, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err == nil {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if !archive.Healthy(probeCtx) {
				err = fmt.Errorf("%s not reachable", cfg.Storage.Endpoint)
			}
			cancel()
		}
		if err == nil {
			err = archive.Init(ctx)
		}
		if err != nil {
			alerter.Warn("archive", "media archive unavailable", err)
			archive = nil
		}
	}

	if cfg.Screenshots.Enabled {
		pollOpts := []screenshot.Option{
			screenshot.WithSchedule(cfg.Screenshots.Schedule),
			screenshot.WithMetrics(m),
			screenshot.WithNotifier(alerter),
			screenshot.WithOnFrame(func(f screenshot.Frame) {
				logger.Debug("browser view changed", "worker", f.Worker, "status", f.Status, "bytes", len(f.Image))
			}),
		}
		if archive != nil {
			pollOpts = append(pollOpts, screenshot.WithArchiver(archive))
		}
		poller, err := screenshot.New(agent, pollOpts...)
		if err != nil {
			logger.Fatal("failed to create screenshot poller", "error", err)
		}
		if err := poller.Start(ctx); err != nil {
			logger.Fatal("failed to start screenshot poller", "error", err)
		}
		defer poller.Stop()
	}

	r := &repl{
		session:     sess,
		list:        shopping.NewList(),
		runtime:     rc,
		transcriber: speechSvc,
		threads:     transcripts,
		dataDir:     cfg.DataDir,
		out:         os.Stdout,
		errOut:      os.Stderr,
	}
	if archive != nil {
		r.archiver = archive
	}

	logger.Info("roomchat started",
		"agent", cfg.Agent.URL,
		"session", sess.Key(),
		"voice", sess.VoiceEnabled(),
		"speech", rc.Get("speech_provider"),
		"screenshots", cfg.Screenshots.Enabled,
		"archive", archive != nil,
	)

	done := make(chan error, 1)
	go func() {
		done <- r.run(ctx, os.Stdin)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("input failed", "error", err)
		}
	case <-ctx.Done():
		sess.StopSpeaking()
	}

	logger.Info("shutting down")
}
