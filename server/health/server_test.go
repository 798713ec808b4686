// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/chatflux/registry"
	"github.com/absmach/chatflux/storage/memory"
)

// downStore wraps the memory store with a failing Ping.
type downStore struct {
	*memory.Store
}

func (downStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthOK(t *testing.T) {
	reg := registry.New(8)
	reg.Register(uuid.New())
	reg.Register(uuid.New())

	s := New(Config{Address: ":0"}, memory.New(), reg, nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Storage)
	assert.Equal(t, 2, resp.Connections)
}

func TestHealthDegradedWhenStorageDown(t *testing.T) {
	s := New(Config{Address: ":0"}, downStore{memory.New()}, registry.New(8), nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unavailable", resp.Storage)
}

func TestReady(t *testing.T) {
	s := New(Config{Address: ":0"}, memory.New(), registry.New(8), nil)
	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s = New(Config{Address: ":0"}, downStore{memory.New()}, registry.New(8), nil)
	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
