package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-graphql/internal/config"
)

type fakeReloader struct {
	err   error
	calls int
}

func (f *fakeReloader) RefreshNowContext(context.Context) error {
	f.calls++
	return f.err
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestBuildRouter_Routes(t *testing.T) {
	tests := []struct {
		name         string
		reload       bool
		method, path string
		wantStatus   int
		wantLocation string
	}{
		{name: "graphql", method: http.MethodPost, path: graphqlPath, wantStatus: http.StatusAccepted},
		{name: "root redirects to graphql", method: http.MethodGet, path: "/", wantStatus: http.StatusFound, wantLocation: graphqlPath},
		{name: "unknown path", method: http.MethodGet, path: "/uploads/a.png", wantStatus: http.StatusNotFound},
		{name: "health without database", method: http.MethodGet, path: healthPath, wantStatus: http.StatusOK},
		{name: "reload disabled", method: http.MethodPost, path: reloadPath, wantStatus: http.StatusNotFound},
		{name: "reload enabled", reload: true, method: http.MethodPost, path: reloadPath, wantStatus: http.StatusNoContent},
		{name: "metrics disabled", method: http.MethodGet, path: metricsPath, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Server: config.ServerConfig{
				HealthCheckTimeout: time.Second,
				Admin:              config.AdminConfig{SchemaReloadEnabled: tt.reload},
			}}
			mux := buildRouter(cfg, testLogger(), nil, statusHandler(http.StatusAccepted), statusHandler(http.StatusNoContent), nil)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
		})
	}
}

func TestHealthHandler_DatabasePing(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantBody: `{"status":"healthy","database":"ok"}`},
		{name: "unreachable", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantBody: `{"status":"unhealthy","database":"failed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()
			mock.ExpectPing().WillReturnError(tt.pingErr)

			rec := httptest.NewRecorder()
			healthHandler(db, time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, healthPath, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBuildAdminHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		header     string
		value      string
		wantStatus int
	}{
		{name: "missing token", method: http.MethodPost, wantStatus: http.StatusUnauthorized},
		{name: "wrong token", method: http.MethodPost, header: "X-Admin-Token", value: "nope", wantStatus: http.StatusUnauthorized},
		// GET passes auth but stops before the manager is asked to refresh.
		{name: "token header", method: http.MethodGet, header: "X-Admin-Token", value: "secret-token", wantStatus: http.StatusMethodNotAllowed},
		{name: "bearer token", method: http.MethodGet, header: "Authorization", value: "Bearer secret-token", wantStatus: http.StatusMethodNotAllowed},
	}
	cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{
		SchemaReloadEnabled: true,
		AuthToken:           "secret-token",
	}}}
	adminHandler, err := buildAdminHandler(cfg, testLogger(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, adminHandler)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, reloadPath, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			adminHandler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestBuildAdminHandler_DisabledReturnsNil(t *testing.T) {
	adminHandler, err := buildAdminHandler(&config.Config{}, testLogger(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, adminHandler)
}

func TestBuildAdminHandler_RequiresToken(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{SchemaReloadEnabled: true}}}
	_, err := buildAdminHandler(cfg, testLogger(), nil, nil)
	assert.Error(t, err)
}

func TestSchemaReloadHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "ok", wantStatus: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "failure", err: errors.New("bad model"), wantStatus: http.StatusInternalServerError, wantBody: `{"status":"error","message":"schema reload failed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reloader := &fakeReloader{err: tt.err}
			rec := httptest.NewRecorder()
			schemaReloadHandler(reloader).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, reloadPath, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, 1, reloader.calls)
		})
	}
}
