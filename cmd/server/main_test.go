package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/crosspost/internal/cache"
	"github.com/kiranshivaraju/crosspost/internal/store"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

// --- mock store ---

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *testStore) CreateUser(_ context.Context, _ *models.User) error        { return nil }
func (s *testStore) CreateVideo(_ context.Context, _ *models.Video) error      { return nil }
func (s *testStore) GetVideo(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.Video, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetCredential(_ context.Context, _ uuid.UUID, _ string) (*models.Credential, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) UpsertCredential(_ context.Context, _ *models.Credential) error { return nil }
func (s *testStore) UpdateCredentialTokens(_ context.Context, _ uuid.UUID, _, _ string, _ time.Time) error {
	return nil
}
func (s *testStore) CreateJob(_ context.Context, _ *models.Job) error { return nil }
func (s *testStore) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListJobs(_ context.Context, _ uuid.UUID, _ store.JobFilter) ([]*models.Job, int, error) {
	return nil, 0, nil
}
func (s *testStore) ClaimNextJob(_ context.Context) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) UpdateJobResults(_ context.Context, _ uuid.UUID, _ models.ResultMap) error {
	return nil
}
func (s *testStore) FinishJob(_ context.Context, _ uuid.UUID, _ models.JobStatus, _ *string) error {
	return nil
}

var _ store.Store = (*testStore)(nil)

// --- mock cache ---

type testCache struct {
	pingErr error
}

func (c *testCache) Ping(_ context.Context) error { return c.pingErr }
func (c *testCache) SetJob(_ context.Context, _ *models.Job, _ time.Duration) error {
	return nil
}
func (c *testCache) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, bool, error) {
	return nil, false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// --- health handler tests ---

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// --- run() config validation tests ---

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "CREDENTIAL_ENCRYPTION_KEY",
		"DRIVE_BASE_URL", "TRANSCODE_BASE_URL",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"META_APP_ID", "META_APP_SECRET",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", strings.Repeat("ab", 32))
	t.Setenv("DRIVE_BASE_URL", "http://localhost:9100")
	t.Setenv("TRANSCODE_BASE_URL", "http://localhost:9200")
	t.Setenv("GOOGLE_CLIENT_ID", "cid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("META_APP_ID", "app")
	t.Setenv("META_APP_SECRET", "secret")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
