// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/chatflux/producer"
	"github.com/absmach/chatflux/ratelimit"
	"github.com/absmach/chatflux/storage"
	"github.com/absmach/chatflux/storage/memory"
)

func newTestServer(t *testing.T, limiter *ratelimit.SenderLimiter) (http.Handler, *memory.Store, *producer.Memory) {
	t.Helper()
	store := memory.New()
	pub := producer.NewMemory()
	srv := New(Config{Address: ":0", ShutdownTimeout: time.Second}, store, pub, limiter, nil, nil)
	return srv.Handler(), store, pub
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetUser(t *testing.T) {
	h, _, _ := newTestServer(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/users", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var user storage.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)

	rec = doJSON(t, h, http.MethodGet, "/users/"+user.UserID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/users/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/users/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndGetChat(t *testing.T) {
	h, _, _ := newTestServer(t, nil)
	members := []uuid.UUID{uuid.New(), uuid.New()}

	rec := doJSON(t, h, http.MethodPost, "/chats", map[string]any{
		"name":    "general",
		"members": members,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var chat storage.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Equal(t, members, chat.Members)

	rec = doJSON(t, h, http.MethodGet, "/chats/"+chat.ChatID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostMessagePublishes(t *testing.T) {
	h, _, pub := newTestServer(t, nil)
	chatID := uuid.New()
	senderID := uuid.New()

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/chats/%s/messages", chatID),
		map[string]string{"content": "hi"},
		&http.Cookie{Name: "sender_id", Value: senderID.String()})
	require.Equal(t, http.StatusAccepted, rec.Code)

	published := pub.Published()
	require.Len(t, published, 1)
	assert.Equal(t, chatID, published[0].ChatID)
	assert.Equal(t, senderID, published[0].SenderID)
	assert.Equal(t, "hi", published[0].Content)
	assert.NotEmpty(t, published[0].MessageID)
}

func TestPostMessageRequiresSenderCookie(t *testing.T) {
	h, _, pub := newTestServer(t, nil)

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/chats/%s/messages", uuid.New()),
		map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.Published())
}

func TestPostMessageRateLimited(t *testing.T) {
	limiter := ratelimit.NewSenderLimiter(1, 1, time.Minute)
	defer limiter.Stop()
	h, _, pub := newTestServer(t, limiter)

	chatID := uuid.New()
	cookie := &http.Cookie{Name: "sender_id", Value: uuid.NewString()}
	body := map[string]string{"content": "spam"}

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/chats/%s/messages", chatID), body, cookie)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/chats/%s/messages", chatID), body, cookie)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, pub.Published(), 1)
}

func TestGetMessages(t *testing.T) {
	h, store, _ := newTestServer(t, nil)
	chatID := uuid.New()

	require.NoError(t, store.InsertMessage(t.Context(), storage.Message{
		MessageID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		ChatID:    chatID,
		SenderID:  uuid.New(),
		Content:   "hello",
	}))

	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/chats/%s/messages", chatID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []storage.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)

	// Unknown chat returns an empty list, not null.
	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/chats/%s/messages", uuid.New()), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
