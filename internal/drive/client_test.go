package drive_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/kiranshivaraju/crosspost/internal/drive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(baseURL string) *drive.HTTPClient {
	return drive.NewHTTPClient(config.DriveConfig{
		BaseURL: baseURL,
		APIKey:  "drive-key",
		Timeout: 5 * time.Second,
	})
}

func TestGetItem(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/items/item-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":   "item-1",
			"name": "demo.mp4",
			"size": 1024,
			"@microsoft.graph.downloadUrl": "https://content.example.com/item-1",
		})
	}))
	defer srv.Close()

	item, err := newClient(srv.URL).GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer drive-key", gotAuth)
	assert.Equal(t, "demo.mp4", item.Name)
	assert.Equal(t, int64(1024), item.Size)
	assert.Equal(t, "https://content.example.com/item-1", item.DownloadURL)
}

func TestGetItem_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, drive.ErrItemNotFound)
}

func TestGetItem_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id": "item-1", "name": "demo.mp4", "size": 10,
			"@microsoft.graph.downloadUrl": "https://content.example.com/item-1",
		})
	}))
	defer srv.Close()

	item, err := newClient(srv.URL).GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetItem_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, drive.ErrItemNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownload(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("video-bytes"))
	}))
	defer content.Close()

	rc, size, err := newClient("http://unused").Download(context.Background(),
		&drive.Item{ID: "item-1", Size: 11, DownloadURL: content.URL})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
	assert.Equal(t, int64(11), size)
}

func TestDownload_BodyOutlivesMetadataTimeout(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("first-half-"))
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		w.Write([]byte("second-half"))
	}))
	defer content.Close()

	// The metadata timeout is far shorter than the time the body takes to
	// stream; the download must not be cut off by it.
	client := drive.NewHTTPClient(config.DriveConfig{
		BaseURL: "http://unused",
		Timeout: 50 * time.Millisecond,
	})

	rc, _, err := client.Download(context.Background(),
		&drive.Item{ID: "item-1", DownloadURL: content.URL})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "first-half-second-half", string(data))
}

func TestDownload_Failure(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer content.Close()

	_, _, err := newClient("http://unused").Download(context.Background(),
		&drive.Item{ID: "item-1", DownloadURL: content.URL})
	assert.Error(t, err)
}
