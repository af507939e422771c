package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/kiranshivaraju/crosspost/internal/publish"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

const (
	maxTitleLen            = 100
	maxDescriptionLen      = 5000
	categoryPeopleAndBlogs = "22"
)

// Publisher uploads videos to YouTube via the resumable upload protocol:
// one metadata POST that returns a session URL in the Location header, then
// a single PUT streaming the whole file to that URL.
type Publisher struct {
	cfg    config.YouTubeConfig
	client *http.Client
}

func NewPublisher(cfg config.YouTubeConfig) *Publisher {
	return &Publisher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Publisher) Platform() models.Platform { return models.PlatformYouTube }

func (p *Publisher) Publish(ctx context.Context, req publish.Request) (*publish.Result, error) {
	body, size, err := req.Source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening video source: %w", err)
	}
	defer body.Close()

	sessionURL, err := p.startSession(ctx, req, size)
	if err != nil {
		return nil, err
	}

	videoID, err := p.uploadVideo(ctx, sessionURL, req.Credential.AccessToken, body, size)
	if err != nil {
		return nil, err
	}

	return &publish.Result{
		PostID:  videoID,
		PostURL: fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID),
	}, nil
}

// startSession sends the video metadata and returns the resumable session
// URL from the Location header.
func (p *Publisher) startSession(ctx context.Context, req publish.Request, size int64) (string, error) {
	metadata := map[string]any{
		"snippet": map[string]any{
			"title":       publish.Truncate(req.Title, maxTitleLen),
			"description": publish.Truncate(req.Description, maxDescriptionLen),
			"categoryId":  categoryPeopleAndBlogs,
		},
		"status": map[string]any{
			"privacyStatus": "public",
		},
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	u := p.cfg.UploadURL + "?uploadType=resumable&part=snippet,status"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building session request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	httpReq.Header.Set("X-Upload-Content-Type", "video/*")
	httpReq.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", size))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("starting upload session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("youtube upload session: status %d: %s", resp.StatusCode, msg)
	}

	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		return "", fmt.Errorf("youtube upload session: missing Location header")
	}
	return sessionURL, nil
}

// uploadVideo streams the whole file to the session URL in one PUT and
// returns the assigned video id.
func (p *Publisher) uploadVideo(ctx context.Context, sessionURL, accessToken string, body io.Reader, size int64) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, body)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "video/*")
	httpReq.ContentLength = size

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("uploading video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("youtube upload: status %d: %s", resp.StatusCode, msg)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("youtube upload: response carried no video id")
	}
	return result.ID, nil
}

var _ publish.Publisher = (*Publisher)(nil)
