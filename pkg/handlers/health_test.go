package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name     string
		executor *mockExecutor
		want     string
	}{
		{name: "no datasource", executor: nil, want: DatasourceNotConfigured},
		{name: "reachable", executor: &mockExecutor{}, want: DatasourceOK},
		{name: "unreachable", executor: &mockExecutor{connErr: errors.New("connection refused")}, want: DatasourceUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&config.Config{}, nil, zap.NewNop())
			if tt.executor != nil {
				handler = NewHealthHandler(&config.Config{}, tt.executor, zap.NewNop())
			}

			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "ok", resp.Status)
			assert.Equal(t, tt.want, resp.Datasource)
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{Version: "test-version", Env: "test", Schema: "cmsdesynpuf23m"}
	handler := NewHealthHandler(cfg, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-version", resp.Version)
	assert.Equal(t, "nlq2sql", resp.Service)
	assert.Equal(t, "test", resp.Environment)
	assert.Equal(t, "cmsdesynpuf23m", resp.Schema)
	assert.NotEmpty(t, resp.GoVersion)
}

func TestHealthHandler_RejectsPost(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(&config.Config{}, nil, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
