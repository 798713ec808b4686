// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package websocket bridges live connections to the connection registry: it
// registers a mailbox on connect, drains it onto the socket, and deregisters
// on disconnect.
package websocket

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/absmach/chatflux/registry"
	"github.com/absmach/chatflux/server/otel"
)

// Handler upgrades HTTP requests to websocket connections and owns each
// connection's lifecycle against the registry.
type Handler struct {
	registry *registry.Registry
	metrics  *otel.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler. metrics may be nil.
func NewHandler(reg *registry.Registry, metrics *otel.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		registry: reg,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP handles GET /ws?user_id=<uuid>. The connection's mailbox is
// drained by a writer goroutine; the read loop only watches for the client
// closing. Either side failing ends both and deregisters the user.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket_upgrade_failed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return
	}

	mailbox := h.registry.Register(userID)
	if h.metrics != nil {
		h.metrics.RecordConnect()
	}
	h.logger.Info("connection_opened", slog.String("user_id", userID.String()))

	done := make(chan struct{})
	go h.writeLoop(conn, mailbox, done)

	// Block until the client closes or the connection errors.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.registry.Deregister(userID, mailbox)
	conn.Close()
	if h.metrics != nil {
		h.metrics.RecordDisconnect()
	}
	h.logger.Info("connection_closed", slog.String("user_id", userID.String()))
}

// writeLoop forwards every mailbox item to the socket as a JSON text frame.
// A write failure closes the connection, which unblocks the read loop.
func (h *Handler) writeLoop(conn *websocket.Conn, mailbox *registry.Mailbox, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-mailbox.C():
			if err := conn.WriteJSON(msg); err != nil {
				conn.Close()
				return
			}
		}
	}
}
