// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)
	server.Metrics().LoginAttempt(OutcomeSuccess)
	server.Metrics().HTTPRequest(http.MethodPost, "/:role/login", http.StatusOK)

	code, body := get(t, server.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `qread_login_attempts_total{outcome="success"} 1`)
	assert.Contains(t, body, `qread_http_requests_total{method="POST",route="/:role/login",status="200"} 1`)
}

func TestServer_Liveness(t *testing.T) {
	server := NewServer("127.0.0.1:0", func(context.Context) error { return errors.New("down") }, nil)

	code, body := get(t, server.Handler(), "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name     string
		checker  ReadinessChecker
		wantCode int
		wantBody string
	}{
		{name: "nil checker", checker: nil, wantCode: http.StatusOK, wantBody: "ok"},
		{name: "ready", checker: func(context.Context) error { return nil }, wantCode: http.StatusOK, wantBody: "ok"},
		{
			name:     "ping fails",
			checker:  func(context.Context) error { return errors.New("connection refused") },
			wantCode: http.StatusServiceUnavailable,
			wantBody: "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer("127.0.0.1:0", tt.checker, nil)
			code, body := get(t, server.Handler(), "/healthz/readiness")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)

	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	_, err = server.Start()
	assert.Error(t, err, "second start must fail")

	resp, err := http.Get("http://" + server.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx), "stop is idempotent")

	_, open := <-errCh
	assert.False(t, open)
}
