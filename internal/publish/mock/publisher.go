package mock

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/crosspost/internal/publish"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

// MockPublisher satisfies publish.Publisher for testing.
type MockPublisher struct {
	Platform_   models.Platform
	PublishFunc func(ctx context.Context, req publish.Request) (*publish.Result, error)

	// Calls records every request passed to Publish, in order.
	Calls []publish.Request
}

func (m *MockPublisher) Platform() models.Platform { return m.Platform_ }

func (m *MockPublisher) Publish(ctx context.Context, req publish.Request) (*publish.Result, error) {
	m.Calls = append(m.Calls, req)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, req)
	}
	return &publish.Result{}, nil
}

// NewMockPublisher returns a publisher that always succeeds with a
// deterministic post ID and URL derived from the platform name.
func NewMockPublisher(platform models.Platform) *MockPublisher {
	return &MockPublisher{
		Platform_: platform,
		PublishFunc: func(_ context.Context, _ publish.Request) (*publish.Result, error) {
			return &publish.Result{
				PostID:  fmt.Sprintf("%s-post-1", platform),
				PostURL: fmt.Sprintf("https://%s.example.com/posts/%s-post-1", platform, platform),
			}, nil
		},
	}
}

// NewFailingPublisher returns a publisher that always returns the given error.
func NewFailingPublisher(platform models.Platform, err error) *MockPublisher {
	return &MockPublisher{
		Platform_: platform,
		PublishFunc: func(_ context.Context, _ publish.Request) (*publish.Result, error) {
			return nil, err
		},
	}
}

// NewPanickingPublisher returns a publisher that panics when invoked.
func NewPanickingPublisher(platform models.Platform) *MockPublisher {
	return &MockPublisher{
		Platform_: platform,
		PublishFunc: func(_ context.Context, _ publish.Request) (*publish.Result, error) {
			panic("publisher exploded")
		},
	}
}

// Compile-time check that MockPublisher implements Publisher.
var _ publish.Publisher = (*MockPublisher)(nil)
