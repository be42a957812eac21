package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/miniiam/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	return config.Config{
		StoreBackend:   config.StoreBackendMemory,
		MetricsEnabled: true,
		Auth:           config.AuthConfig{JWTSecret: "server-secret", BcryptCost: 4},
		MQ:             config.MQConfig{Backend: config.BackendNone, AuditChannel: "iam.audit"},
		Storage:        config.StorageConfig{Backend: config.BackendNone},
	}
}

func TestNewRequiresSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.JWTSecret = " "

	_, err := New(context.Background(), cfg)
	assert.EqualError(t, err, "JWT_SECRET is required")
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "sqlite"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown store backend")

	cfg = memoryConfig()
	cfg.MQ.Backend = "kafka"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown mq backend")
}

func TestRouterEndToEnd(t *testing.T) {
	srv, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	router := srv.Router()

	call := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(http.MethodPost, "/auth/register", "", `{"username":"root","password":"pw","role":"Admin"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(http.MethodPost, "/auth/login", "", `{"username":"root","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var token struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))

	rec = call(http.MethodGet, "/reports/access-review", token.AccessToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
