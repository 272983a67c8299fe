package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketlink/internal/adapter/rest"
	"marketlink/internal/domain/entity"
	"marketlink/internal/infrastructure/channel"
	"marketlink/internal/usecase"
	"marketlink/pkg/config"
	"marketlink/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.AuthToken == "" {
		logger.Error("AUTH_TOKEN is required")
		os.Exit(1)
	}

	backend := rest.NewClient(cfg.BackendURL, cfg.AuthToken, &http.Client{Timeout: cfg.RESTTimeout})

	newChannel := func(scope string, onEvent func(entity.Event), onStatus func(channel.Status)) usecase.Channel {
		url := cfg.WebsocketURL + "/v1/ws"
		if scope != "" {
			url = cfg.WebsocketURL + "/v1/ws/threads/" + scope
		}
		return channel.New(channel.Config{
			URL:           url,
			Token:         cfg.AuthToken,
			OnEvent:       onEvent,
			OnStatus:      onStatus,
			MinBackoff:    cfg.BackoffMin,
			MaxBackoff:    cfg.BackoffMax,
			BackoffFactor: cfg.BackoffFactor,
		})
	}

	list := usecase.NewThreadList(backend, newChannel)
	list.Start()
	defer list.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RESTTimeout)
	if err := list.RefreshThreads(ctx); err != nil {
		logger.Warn("Initial thread refresh failed: %v", err)
	}
	if err := list.RefreshUnreadCount(ctx); err != nil {
		logger.Warn("Initial unread count refresh failed: %v", err)
	}
	cancel()

	threads := list.Threads()
	logger.Info("Synchronized %d threads, %d unread", len(threads), list.UnreadTotal())
	for _, t := range threads {
		last := "(no messages)"
		if t.LastMessage != nil {
			last = t.LastMessage.Content
		}
		logger.Info("  thread %s [unread %d]: %s", t.ID, t.UnreadCount, last)
	}

	// Open a live session for the freshest thread so its tail streams in.
	var session *usecase.Session
	if len(threads) > 0 {
		session = usecase.NewSession(threads[0].ID, backend, newChannel, list, cfg.PageSize)
		openCtx, cancel := context.WithTimeout(context.Background(), cfg.RESTTimeout)
		if err := session.Open(openCtx); err != nil {
			logger.Warn("Failed to open session for thread %s: %v", threads[0].ID, err)
			session = nil
		}
		cancel()
		if session != nil {
			logger.Info("Session open on thread %s with %d messages loaded", session.ThreadID(), len(session.Messages()))
			defer session.Close()
		}
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			logger.Info("Status: list=%s, threads=%d, unread=%d", list.Status(), len(list.Threads()), list.UnreadTotal())
		case <-quit:
			logger.Info("Shutting down")
			return
		}
	}
}
