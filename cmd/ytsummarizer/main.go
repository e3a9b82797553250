package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ytsummarizer/internal/config"
	"ytsummarizer/internal/observability"
	"ytsummarizer/internal/pipeline"
	"ytsummarizer/internal/summarize"
	"ytsummarizer/internal/transcript"
	"ytsummarizer/internal/upstream/openai"
	"ytsummarizer/internal/web"
	"ytsummarizer/internal/youtube"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()
	logger.Info("settings loaded", "path", cfg.SettingsPath, "model", cfg.ModelName, "languages", cfg.TranscriptLanguages)

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}

	youtubeClient := youtube.New(upstreamHTTPClient,
		youtube.WithObserver(metrics.ObserveUpstream),
		youtube.WithRateLimit(cfg.YouTubeRequestsPerSecond, 3),
	)
	chatClient := openai.New(cfg.BaseURL, cfg.APIKey, upstreamHTTPClient, openai.WithObserver(metrics.ObserveUpstream))

	transcriptService := transcript.New(youtubeClient, cfg.TranscriptLanguages, cfg.TranscriptTimeout)
	summarizeService := summarize.New(chatClient, cfg.ModelName, cfg.SummaryTimeout)
	pipelineService := pipeline.New(transcriptService, summarizeService, logger)

	handler := web.NewServer(cfg, logger, web.Dependencies{
		Pipeline:       pipelineService,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	// A run waits on both upstream calls, so the write deadline covers both stage timeouts.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.TranscriptTimeout + cfg.SummaryTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
