// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the chat HTTP surface: user and chat CRUD, message
// history, the publish endpoint feeding the broker, and the websocket
// attachment point.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/absmach/chatflux/producer"
	"github.com/absmach/chatflux/ratelimit"
	"github.com/absmach/chatflux/storage"
)

// Config holds HTTP server settings.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	config Config
	server *http.Server
	logger *slog.Logger
}

// New creates the API server. limiter and ws may be nil; a nil ws leaves the
// websocket route unmounted.
func New(cfg Config, store storage.Store, pub producer.Producer, limiter *ratelimit.SenderLimiter, ws http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		store:    store,
		producer: pub,
		limiter:  limiter,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Post("/users", h.createUser)
	r.Get("/users/{userID}", h.getUser)
	r.Post("/chats", h.createChat)
	r.Get("/chats/{chatID}", h.getChat)
	r.Post("/chats/{chatID}/messages", h.postMessage)
	r.Get("/chats/{chatID}/messages", h.getMessages)

	if ws != nil {
		r.Get("/ws", ws.ServeHTTP)
	}

	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:    cfg.Address,
			Handler: r,
		},
		logger: logger,
	}
}

// Handler returns the server's HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	s.logger.Info("api_server_starting", slog.String("addr", s.config.Address))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("api_server_shutdown_error", slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("api_server_stopped")
		return nil
	}
}

// requestLogger logs one line per request after it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("http_request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
