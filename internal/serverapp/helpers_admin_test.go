package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jobez/dojo/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) RefreshNow(context.Context) error {
	f.calls++
	return f.err
}

func adminConfig(enabled bool, token string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HealthCheckTimeout: time.Second,
			Admin: config.AdminConfig{
				SchemaReloadEnabled: enabled,
				AuthToken:           token,
			},
		},
	}
}

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestBuildRouter_AdminRouteDisabledReturnsNotFound(t *testing.T) {
	cfg := adminConfig(false, "")
	adminHandler, err := buildAdminHandler(cfg, testLogger(), &fakeRefresher{})
	require.NoError(t, err)
	assert.Nil(t, adminHandler)

	mux := buildRouter(cfg, testLogger(), nil, okHandler(http.StatusOK), adminHandler, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildRouter_AdminRouteEnabledInvokesHandler(t *testing.T) {
	cfg := adminConfig(true, "secret-token")
	mux := buildRouter(cfg, testLogger(), nil, okHandler(http.StatusOK), okHandler(http.StatusAccepted), nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestBuildRouter_RootRedirectsToGraphQL(t *testing.T) {
	mux := buildRouter(adminConfig(false, ""), testLogger(), nil, okHandler(http.StatusOK), nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/graphql", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildRouter_HealthWithoutDatabase(t *testing.T) {
	mux := buildRouter(adminConfig(false, ""), testLogger(), nil, okHandler(http.StatusOK), nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildAdminHandler_RequiresToken(t *testing.T) {
	_, err := buildAdminHandler(adminConfig(true, ""), testLogger(), &fakeRefresher{})
	assert.ErrorContains(t, err, "admin token is required")
}

func TestBuildAdminHandler_MissingHeaderUnauthorized(t *testing.T) {
	refresher := &fakeRefresher{}
	adminHandler, err := buildAdminHandler(adminConfig(true, "secret-token"), testLogger(), refresher)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, refresher.calls)
}

func TestBuildAdminHandler_ValidTokenRefreshes(t *testing.T) {
	refresher := &fakeRefresher{}
	adminHandler, err := buildAdminHandler(adminConfig(true, "secret-token"), testLogger(), refresher)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
	req.Header.Set("X-Admin-Token", "secret-token")
	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, 1, refresher.calls)
}

func TestBuildAdminHandler_GetNotAllowed(t *testing.T) {
	refresher := &fakeRefresher{}
	adminHandler, err := buildAdminHandler(adminConfig(true, "secret-token"), testLogger(), refresher)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/reload-schema", nil)
	req.Header.Set("X-Admin-Token", "secret-token")
	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, refresher.calls)
}

func TestSchemaReloadHandler_RefreshFailure(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("catalog unreadable")}

	rec := httptest.NewRecorder()
	schemaReloadHandler(refresher).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "catalog unreadable")
}
