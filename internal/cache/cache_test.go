package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crosspost/internal/cache"
	"github.com/kiranshivaraju/crosspost/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	return rc
}

func TestJob_SetAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	job := &models.Job{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Platforms: []models.Platform{models.PlatformYouTube},
		Status:    models.JobStatusProcessing,
		Results: models.ResultMap{
			models.PlatformYouTube: {Success: true, PostID: "yt-1"},
		},
	}

	_, found, err := rc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.SetJob(ctx, job, time.Minute))

	got, found, err := rc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.UserID, got.UserID)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	assert.Equal(t, "yt-1", got.Results[models.PlatformYouTube].PostID)
}

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("cp_abcd")

	n, err := rc.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = rc.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("a2aa82a5-6132-44a4-b7d6-5e52fb91bd2a")
	assert.Equal(t, "job:a2aa82a5-6132-44a4-b7d6-5e52fb91bd2a", cache.JobKey(id))
	assert.Equal(t, "ratelimit:cp_abcd", cache.RateLimitKey("cp_abcd"))
}
