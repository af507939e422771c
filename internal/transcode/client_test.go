package transcode_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/kiranshivaraju/crosspost/internal/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(baseURL string) *transcode.HTTPClient {
	return transcode.NewHTTPClient(config.TranscodeConfig{
		BaseURL: baseURL,
		APIKey:  "transcode-key",
		Timeout: 5 * time.Second,
	})
}

func TestTranscode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transcodes", r.URL.Path)
		assert.Equal(t, "Bearer transcode-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://content.example.com/item-1", body["source_url"])

		json.NewEncoder(w).Encode(map[string]string{
			"url":      "https://public.example.com/abc.mp4",
			"asset_id": "asset-abc",
		})
	}))
	defer srv.Close()

	res, err := newClient(srv.URL).Transcode(context.Background(), "https://content.example.com/item-1")
	require.NoError(t, err)
	assert.Equal(t, "https://public.example.com/abc.mp4", res.URL)
	assert.Equal(t, "asset-abc", res.AssetID)
}

func TestTranscode_VendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported codec", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Transcode(context.Background(), "https://content.example.com/item-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, transcode.ErrTranscodeFailed)
	assert.Contains(t, err.Error(), "unsupported codec")
}

func TestCleanup(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newClient(srv.URL).Cleanup(context.Background(), "asset-abc")
	require.NoError(t, err)
	assert.Equal(t, "DELETE /v1/transcodes/asset-abc", gotPath)
}

func TestCleanup_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newClient(srv.URL).Cleanup(context.Background(), "asset-abc")
	assert.Error(t, err)
}
