package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/kiranshivaraju/crosspost/internal/publish"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

const maxDescriptionLen = 5000

// Publisher uploads videos to a Facebook page via the Graph chunked upload
// protocol: a start call opens a session, transfer calls send the byte
// ranges the vendor asks for, and a finish call publishes the video.
//
// The byte ranges come back from the vendor on every transfer response.
// Facebook recomputes them per chunk, so the loop always sends exactly the
// window the previous response requested rather than a fixed chunk size.
type Publisher struct {
	cfg    config.MetaConfig
	client *http.Client
}

func NewPublisher(cfg config.MetaConfig) *Publisher {
	return &Publisher{cfg: cfg, client: &http.Client{Timeout: 10 * time.Minute}}
}

func (p *Publisher) Platform() models.Platform { return models.PlatformFacebook }

type uploadSession struct {
	VideoID     string `json:"video_id"`
	SessionID   string `json:"upload_session_id"`
	StartOffset string `json:"start_offset"`
	EndOffset   string `json:"end_offset"`
}

func (p *Publisher) Publish(ctx context.Context, req publish.Request) (*publish.Result, error) {
	if req.Credential.PageID == "" {
		return nil, fmt.Errorf("facebook credential has no page id")
	}

	body, size, err := req.Source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening video source: %w", err)
	}
	defer body.Close()

	session, err := p.startUpload(ctx, req.Credential, size)
	if err != nil {
		return nil, err
	}

	if err := p.transferChunks(ctx, req.Credential, session, body); err != nil {
		return nil, err
	}

	if err := p.finishUpload(ctx, req.Credential, session, req); err != nil {
		return nil, err
	}

	return &publish.Result{
		PostID:  session.VideoID,
		PostURL: fmt.Sprintf("https://www.facebook.com/%s", session.VideoID),
	}, nil
}

func (p *Publisher) videosURL(pageID string) string {
	return fmt.Sprintf("%s/%s/%s/videos", p.cfg.VideoGraphURL, p.cfg.APIVersion, pageID)
}

func (p *Publisher) startUpload(ctx context.Context, cred *models.Credential, size int64) (*uploadSession, error) {
	form := url.Values{
		"upload_phase": {"start"},
		"access_token": {cred.AccessToken},
		"file_size":    {strconv.FormatInt(size, 10)},
	}

	var session uploadSession
	if err := p.postForm(ctx, p.videosURL(cred.PageID), form, &session); err != nil {
		return nil, fmt.Errorf("starting facebook upload: %w", err)
	}
	if session.SessionID == "" || session.VideoID == "" {
		return nil, fmt.Errorf("starting facebook upload: incomplete session response")
	}
	return &session, nil
}

// transferChunks sends byte windows until the vendor reports start == end.
// The stream is sequential; position tracks how far it has been consumed so
// a vendor-requested offset ahead of it can be reached by discarding.
func (p *Publisher) transferChunks(ctx context.Context, cred *models.Credential,
	session *uploadSession, body io.Reader) error {

	start, err := strconv.ParseInt(session.StartOffset, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing start_offset %q: %w", session.StartOffset, err)
	}
	end, err := strconv.ParseInt(session.EndOffset, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing end_offset %q: %w", session.EndOffset, err)
	}

	var position int64
	for start < end {
		if start < position {
			return fmt.Errorf("facebook requested offset %d behind stream position %d", start, position)
		}
		if start > position {
			if _, err := io.CopyN(io.Discard, body, start-position); err != nil {
				return fmt.Errorf("seeking to offset %d: %w", start, err)
			}
			position = start
		}

		chunk := make([]byte, end-start)
		if _, err := io.ReadFull(body, chunk); err != nil {
			return fmt.Errorf("reading chunk [%d,%d): %w", start, end, err)
		}
		position = end

		resp, err := p.transferChunk(ctx, cred, session.SessionID, start, chunk)
		if err != nil {
			return err
		}

		if start, err = strconv.ParseInt(resp.StartOffset, 10, 64); err != nil {
			return fmt.Errorf("parsing start_offset %q: %w", resp.StartOffset, err)
		}
		if end, err = strconv.ParseInt(resp.EndOffset, 10, 64); err != nil {
			return fmt.Errorf("parsing end_offset %q: %w", resp.EndOffset, err)
		}
	}

	// start == end means the vendor considers the upload complete, even if
	// it never asked for the trailing bytes.
	return nil
}

func (p *Publisher) transferChunk(ctx context.Context, cred *models.Credential,
	sessionID string, offset int64, chunk []byte) (*uploadSession, error) {

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("upload_phase", "transfer")
	_ = mw.WriteField("access_token", cred.AccessToken)
	_ = mw.WriteField("upload_session_id", sessionID)
	_ = mw.WriteField("start_offset", strconv.FormatInt(offset, 10))
	fw, err := mw.CreateFormFile("video_file_chunk", "chunk")
	if err != nil {
		return nil, fmt.Errorf("building chunk form: %w", err)
	}
	if _, err := fw.Write(chunk); err != nil {
		return nil, fmt.Errorf("building chunk form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building chunk form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.videosURL(cred.PageID), &buf)
	if err != nil {
		return nil, fmt.Errorf("building transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transferring chunk at %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("facebook transfer: status %d: %s", resp.StatusCode, msg)
	}

	var out uploadSession
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding transfer response: %w", err)
	}
	return &out, nil
}

func (p *Publisher) finishUpload(ctx context.Context, cred *models.Credential,
	session *uploadSession, req publish.Request) error {

	form := url.Values{
		"upload_phase":      {"finish"},
		"access_token":      {cred.AccessToken},
		"upload_session_id": {session.SessionID},
		"title":             {req.Title},
		"description":       {publish.Truncate(req.Description, maxDescriptionLen)},
	}

	var out struct {
		Success bool `json:"success"`
	}
	if err := p.postForm(ctx, p.videosURL(cred.PageID), form, &out); err != nil {
		return fmt.Errorf("finishing facebook upload: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("finishing facebook upload: vendor reported failure")
	}
	return nil
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
