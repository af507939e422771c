package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kiranshivaraju/crosspost/internal/config"
)

var ErrTranscodeFailed = errors.New("transcode failed")

// Result is a transcoded asset: a publicly reachable MP4 URL plus the handle
// used to delete the temporary asset once publishing is done.
type Result struct {
	URL     string
	AssetID string
}

// Client converts a private video URL into a public H.264/AAC MP4 that
// URL-based vendors (Instagram) can ingest.
type Client interface {
	Transcode(ctx context.Context, sourceURL string) (*Result, error)
	Cleanup(ctx context.Context, assetID string) error
}

// HTTPClient implements Client against the transcoding service's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new transcoding service client.
func NewHTTPClient(cfg config.TranscodeConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) Transcode(ctx context.Context, sourceURL string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"source_url": sourceURL})
	if err != nil {
		return nil, fmt.Errorf("marshal transcode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/transcodes", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTranscodeFailed, resp.StatusCode, body)
	}

	var body struct {
		URL     string `json:"url"`
		AssetID string `json:"asset_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding transcode response: %w", err)
	}
	if body.URL == "" || body.AssetID == "" {
		return nil, fmt.Errorf("%w: response missing url or asset_id", ErrTranscodeFailed)
	}

	return &Result{URL: body.URL, AssetID: body.AssetID}, nil
}

func (c *HTTPClient) Cleanup(ctx context.Context, assetID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/v1/transcodes/"+url.PathEscape(assetID), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cleanup transcoded asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("cleanup transcoded asset: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

var _ Client = (*HTTPClient)(nil)
