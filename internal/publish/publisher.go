package publish

import (
	"context"
	"io"

	"github.com/kiranshivaraju/crosspost/pkg/models"
)

// Source exposes one video asset to the adapters. Byte-upload vendors call
// Open; URL-ingest vendors (Instagram) call URL and hand it to the
// transcoding service.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, int64, error)
	URL(ctx context.Context) (string, error)
}

// Request carries everything one adapter needs for a single publish attempt.
// Title and description are raw; each adapter truncates to its own limits.
type Request struct {
	Source      Source
	Title       string
	Description string
	Credential  *models.Credential
}

// Result is a successful publish: the vendor-assigned post id and the URL
// the post is reachable at.
type Result struct {
	PostID  string
	PostURL string
}

// Publisher is implemented once per platform. Publish runs the platform's
// full upload protocol and returns only when the post exists (or failed).
type Publisher interface {
	Platform() models.Platform
	Publish(ctx context.Context, req Request) (*Result, error)
}

// Truncate cuts s to at most max runes. Vendors reject over-long metadata;
// the policy here is truncation, not rejection.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
