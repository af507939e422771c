package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/sethvargo/go-retry"
)

// Sentinel errors for drive client failures.
var (
	ErrItemNotFound     = errors.New("drive item not found")
	ErrDriveUnreachable = errors.New("drive unreachable")
	ErrDriveTimeout     = errors.New("drive request timeout")
)

// Item is a stored video asset. DownloadURL is a pre-authenticated direct
// link the drive hands out per item; it is short-lived and must not be
// persisted.
type Item struct {
	ID          string
	Name        string
	Size        int64
	DownloadURL string
}

// Client resolves video assets from the user's cloud drive.
type Client interface {
	// GetItem fetches an item's metadata, including its direct download URL.
	GetItem(ctx context.Context, itemID string) (*Item, error)
	// Download opens the item's binary content. The caller must close the
	// returned reader.
	Download(ctx context.Context, item *Item) (io.ReadCloser, int64, error)
}

// HTTPClient implements Client against a Graph-style drive HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	// download has no overall timeout. http.Client.Timeout covers reading
	// the response body, and download bodies are streamed into uploads that
	// can take far longer than any sane metadata timeout. Callers cancel
	// downloads through the request context instead.
	download *http.Client
}

// NewHTTPClient creates a new drive HTTP client.
func NewHTTPClient(cfg config.DriveConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		download: &http.Client{},
	}
}

func (c *HTTPClient) GetItem(ctx context.Context, itemID string) (*Item, error) {
	u := fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(itemID))

	var item *Item
	// Metadata lookups are cheap; retry transient failures a few times with
	// backoff before giving up.
	backoff := retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		got, err := c.getItemOnce(ctx, u)
		if err != nil {
			if errors.Is(err, ErrDriveUnreachable) || errors.Is(err, ErrDriveTimeout) {
				return retry.RetryableError(err)
			}
			return err
		}
		item = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *HTTPClient) getItemOnce(ctx context.Context, u string) (*Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrItemNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrDriveUnreachable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("drive item lookup failed: status %d", resp.StatusCode)
	}

	var body struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Size        int64  `json:"size"`
		DownloadURL string `json:"@microsoft.graph.downloadUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding drive response: %w", err)
	}
	if body.DownloadURL == "" {
		return nil, fmt.Errorf("drive item %s has no download URL", body.ID)
	}

	return &Item{
		ID:          body.ID,
		Name:        body.Name,
		Size:        body.Size,
		DownloadURL: body.DownloadURL,
	}, nil
}

func (c *HTTPClient) Download(ctx context.Context, item *Item) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("drive download failed: status %d", resp.StatusCode)
	}

	size := item.Size
	if resp.ContentLength > 0 {
		size = resp.ContentLength
	}
	return resp.Body, size, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrDriveTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrDriveTimeout, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrDriveUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
