package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/kiranshivaraju/crosspost/internal/publish"
	"github.com/kiranshivaraju/crosspost/internal/transcode"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

const maxCaptionLen = 2200

// ErrProcessingTimeout is returned when the media container does not reach
// FINISHED within the polling budget. The container may still complete on
// Instagram's side afterwards; the job just stops waiting for it.
var ErrProcessingTimeout = errors.New("processing timeout")

// Publisher posts Reels through the Instagram Graph API. Instagram ingests
// by URL, not by byte upload, and is strict about codecs, so the source is
// first run through the transcoding service. The transcoded asset is
// cleaned up whatever happens after it is created.
type Publisher struct {
	cfg        config.MetaConfig
	igCfg      config.InstagramConfig
	transcoder transcode.Client
	client     *http.Client
}

func NewPublisher(cfg config.MetaConfig, igCfg config.InstagramConfig, transcoder transcode.Client) *Publisher {
	return &Publisher{
		cfg:        cfg,
		igCfg:      igCfg,
		transcoder: transcoder,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Publisher) Platform() models.Platform { return models.PlatformInstagram }

func (p *Publisher) Publish(ctx context.Context, req publish.Request) (*publish.Result, error) {
	if req.Credential.IGUserID == "" {
		return nil, fmt.Errorf("instagram credential has no ig user id")
	}

	sourceURL, err := req.Source.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving source url: %w", err)
	}

	asset, err := p.transcoder.Transcode(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("transcoding for instagram: %w", err)
	}
	defer func() {
		// Best effort; a leaked asset must never fail the publish.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := p.transcoder.Cleanup(cleanupCtx, asset.AssetID); err != nil {
			slog.Warn("cleaning up transcoded asset", "asset_id", asset.AssetID, "error", err)
		}
	}()

	containerID, err := p.createContainer(ctx, req.Credential, asset.URL, caption(req))
	if err != nil {
		return nil, err
	}

	if err := p.waitForContainer(ctx, req.Credential, containerID); err != nil {
		return nil, err
	}

	mediaID, err := p.publishContainer(ctx, req.Credential, containerID)
	if err != nil {
		return nil, err
	}

	return &publish.Result{
		PostID:  mediaID,
		PostURL: p.permalink(ctx, req.Credential, mediaID),
	}, nil
}

func caption(req publish.Request) string {
	c := req.Description
	if c == "" {
		c = req.Title
	}
	return publish.Truncate(c, maxCaptionLen)
}

func (p *Publisher) graphURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.GraphURL, p.cfg.APIVersion, path)
}

func (p *Publisher) createContainer(ctx context.Context, cred *models.Credential, videoURL, caption string) (string, error) {
	form := url.Values{
		"media_type":   {"REELS"},
		"video_url":    {videoURL},
		"caption":      {caption},
		"access_token": {cred.AccessToken},
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := p.postForm(ctx, p.graphURL(cred.IGUserID+"/media"), form, &out); err != nil {
		return "", fmt.Errorf("creating media container: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("creating media container: response carried no id")
	}
	return out.ID, nil
}

// waitForContainer polls the container status until it is FINISHED. The
// budget is bounded: pollInterval * maxPollChecks is the longest any single
// instagram attempt can spend waiting on server-side processing.
func (p *Publisher) waitForContainer(ctx context.Context, cred *models.Credential, containerID string) error {
	for i := 0; i < p.igCfg.MaxPollChecks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.igCfg.PollInterval):
		}

		status, err := p.containerStatus(ctx, cred, containerID)
		if err != nil {
			return err
		}
		switch status {
		case "FINISHED":
			return nil
		case "ERROR":
			return fmt.Errorf("instagram could not process the video")
		}
		// IN_PROGRESS and anything unknown: keep waiting.
	}
	return ErrProcessingTimeout
}

func (p *Publisher) containerStatus(ctx context.Context, cred *models.Credential, containerID string) (string, error) {
	u := fmt.Sprintf("%s?fields=status_code&access_token=%s",
		p.graphURL(containerID), url.QueryEscape(cred.AccessToken))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("building status request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("checking container status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("container status: status %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		StatusCode string `json:"status_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding container status: %w", err)
	}
	return out.StatusCode, nil
}

func (p *Publisher) publishContainer(ctx context.Context, cred *models.Credential, containerID string) (string, error) {
	form := url.Values{
		"creation_id":  {containerID},
		"access_token": {cred.AccessToken},
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := p.postForm(ctx, p.graphURL(cred.IGUserID+"/media_publish"), form, &out); err != nil {
		return "", fmt.Errorf("publishing media container: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("publishing media container: response carried no id")
	}
	return out.ID, nil
}

// permalink asks Instagram for the canonical post URL. Lookup failures fall
// back to a constructed URL rather than failing a publish that already
// succeeded.
func (p *Publisher) permalink(ctx context.Context, cred *models.Credential, mediaID string) string {
	fallback := fmt.Sprintf("https://www.instagram.com/reel/%s", mediaID)

	u := fmt.Sprintf("%s?fields=permalink&access_token=%s",
		p.graphURL(mediaID), url.QueryEscape(cred.AccessToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fallback
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		slog.Warn("fetching instagram permalink", "media_id", mediaID, "error", err)
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallback
	}

	var out struct {
		Permalink string `json:"permalink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Permalink == "" {
		return fallback
	}
	return out.Permalink
}

func (p *Publisher) postForm(ctx context.Context, u string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ publish.Publisher = (*Publisher)(nil)
