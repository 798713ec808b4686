// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/absmach/chatflux/producer"
	"github.com/absmach/chatflux/ratelimit"
	"github.com/absmach/chatflux/storage"
)

type handler struct {
	store    storage.Store
	producer producer.Producer
	limiter  *ratelimit.SenderLimiter
	logger   *slog.Logger
}

type createUserRequest struct {
	Username string `json:"username"`
}

type createChatRequest struct {
	Name    string      `json:"name"`
	Members []uuid.UUID `json:"members"`
}

type createMessageRequest struct {
	Content string `json:"content"`
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Username)
	if err != nil {
		h.serverError(w, "create user", err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.serverError(w, "get user", err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *handler) createChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	chat, err := h.store.CreateChat(r.Context(), req.Name, req.Members)
	if err != nil {
		h.serverError(w, "create chat", err)
		return
	}
	respondJSON(w, http.StatusCreated, chat)
}

func (h *handler) getChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	chat, err := h.store.GetChat(r.Context(), chatID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		h.serverError(w, "get chat", err)
		return
	}
	respondJSON(w, http.StatusOK, chat)
}

// postMessage accepts a message into the distribution pipeline. A 202 means
// the broker acknowledged the record; persistence and delivery happen
// asynchronously downstream.
func (h *handler) postMessage(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	cookie, err := r.Cookie("sender_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "sender_id cookie is required")
		return
	}
	senderID, err := uuid.Parse(cookie.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sender_id cookie")
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(senderID) {
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	err = h.producer.Publish(r.Context(), storage.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Content:  req.Content,
	})
	if err != nil {
		h.serverError(w, "publish message", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) getMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	msgs, err := h.store.MessagesOf(r.Context(), chatID)
	if err != nil {
		h.serverError(w, "get messages", err)
		return
	}
	if msgs == nil {
		msgs = []storage.Message{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (h *handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("request_failed", slog.String("op", op), slog.String("error", err.Error()))
	respondError(w, http.StatusInternalServerError, "internal server error")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
