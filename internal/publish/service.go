package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crosspost/internal/cache"
	"github.com/kiranshivaraju/crosspost/internal/drive"
	"github.com/kiranshivaraju/crosspost/internal/metrics"
	"github.com/kiranshivaraju/crosspost/internal/store"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

const (
	// Tokens expiring within this window are refreshed before publishing.
	defaultRefreshWindow = 5 * time.Minute
	jobCacheTTL          = 30 * time.Minute
)

// SubmitParams holds validated parameters for a publish request.
type SubmitParams struct {
	UserID      uuid.UUID
	VideoID     uuid.UUID
	Platforms   []models.Platform
	Title       string
	Description string
}

// Service creates publish jobs and processes them platform by platform.
type Service struct {
	store         store.Store
	cache         cache.Cache
	drive         drive.Client
	publishers    map[models.Platform]Publisher
	refreshers    map[string]TokenRefresher
	refreshWindow time.Duration
}

// NewService creates a new publish Service. All collaborators are injected;
// the service holds no lazily-initialized state.
func NewService(st store.Store, ca cache.Cache, dr drive.Client,
	publishers []Publisher, refreshers map[string]TokenRefresher) *Service {

	byPlatform := make(map[models.Platform]Publisher, len(publishers))
	for _, p := range publishers {
		byPlatform[p.Platform()] = p
	}
	return &Service{
		store:         st,
		cache:         ca,
		drive:         dr,
		publishers:    byPlatform,
		refreshers:    refreshers,
		refreshWindow: defaultRefreshWindow,
	}
}

// Submit validates the video exists, creates a pending job, and returns it.
// The job is picked up by the worker pool; nothing is dispatched inline, so
// a submission that returns successfully can never be lost.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.Job, error) {
	video, err := s.store.GetVideo(ctx, params.VideoID, params.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading video: %w", err)
	}

	if _, err := s.drive.GetItem(ctx, video.DriveItemID); err != nil {
		if errors.Is(err, drive.ErrItemNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("resolving video asset: %w", err)
	}

	title := params.Title
	if title == "" {
		title = video.DefaultTitle()
	}
	description := params.Description
	if description == "" {
		description = video.Description
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		UserID:      params.UserID,
		VideoID:     params.VideoID,
		Platforms:   models.OrderPlatforms(params.Platforms),
		Title:       title,
		Description: description,
		Status:      models.JobStatusPending,
		Results:     models.ResultMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	s.mirrorJob(ctx, job)
	metrics.JobsSubmittedTotal.Inc()

	slog.Info("publish job submitted",
		"job_id", job.ID, "user_id", job.UserID, "platforms", job.Platforms)
	return job, nil
}

// Process runs one claimed job to completion. The worker has already moved
// the job to processing; this method owns everything after that. Platforms
// are attempted sequentially; one platform's failure never aborts the rest,
// and partial results are persisted after every attempt so pollers observe
// progress incrementally.
func (s *Service) Process(ctx context.Context, job *models.Job) {
	// A claimed job must always reach a terminal state. Cancellation can
	// fail a platform attempt, but the writes recording that outcome must
	// go through, so persistence runs on a detached context.
	persistCtx := context.WithoutCancel(ctx)

	results := models.ResultMap{}
	for p, r := range job.Results {
		results[p] = r
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic processing job", "job_id", job.ID, "error", r)
			s.abort(persistCtx, job, results, fmt.Sprintf("panic: %v", r))
		}
	}()

	s.mirrorJob(persistCtx, job)

	video, err := s.store.GetVideo(ctx, job.VideoID, job.UserID)
	if err != nil {
		s.abort(persistCtx, job, results, fmt.Sprintf("loading video: %v", err))
		return
	}
	item, err := s.drive.GetItem(ctx, video.DriveItemID)
	if err != nil {
		s.abort(persistCtx, job, results, fmt.Sprintf("resolving video asset: %v", err))
		return
	}
	src := &driveSource{drive: s.drive, item: item}

	for _, platform := range models.OrderPlatforms(job.Platforms) {
		if _, done := results[platform]; done {
			continue
		}

		started := time.Now()
		result := s.attempt(ctx, job, platform, src)
		metrics.PlatformPublishDuration.WithLabelValues(string(platform)).
			Observe(time.Since(started).Seconds())
		metrics.PlatformPublishesTotal.WithLabelValues(string(platform), outcome(result)).Inc()

		results[platform] = result
		if err := s.store.UpdateJobResults(persistCtx, job.ID, results); err != nil {
			// The job record itself is unreachable; nothing useful can be
			// recorded for the remaining platforms either.
			slog.Error("persisting job results", "job_id", job.ID, "error", err)
			s.abort(persistCtx, job, results, fmt.Sprintf("persisting results: %v", err))
			return
		}
		job.Results = results
		s.mirrorJob(persistCtx, job)

		if result.Success {
			slog.Info("platform publish succeeded",
				"job_id", job.ID, "platform", platform, "post_url", result.PostURL)
		} else {
			slog.Warn("platform publish failed",
				"job_id", job.ID, "platform", platform, "error", result.Error)
		}
	}

	status := models.JobStatusFailed
	if results.AnySuccess() {
		status = models.JobStatusCompleted
	}
	if err := s.store.FinishJob(persistCtx, job.ID, status, nil); err != nil {
		slog.Error("finishing job", "job_id", job.ID, "error", err)
		return
	}
	job.Status = status
	completed := time.Now().UTC()
	job.CompletedAt = &completed
	s.mirrorJob(persistCtx, job)
	metrics.JobsFinishedTotal.WithLabelValues(string(status)).Inc()

	slog.Info("publish job finished", "job_id", job.ID, "status", status)
}

// attempt runs one platform's publish with full isolation: credential
// lookup, token refresh, adapter invocation. Any error or panic becomes a
// failure result for this platform only.
func (s *Service) attempt(ctx context.Context, job *models.Job, platform models.Platform, src Source) (result models.PlatformResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic publishing to platform",
				"job_id", job.ID, "platform", platform, "error", r)
			result = failure(fmt.Sprintf("panic: %v", r))
		}
	}()

	cred, err := s.store.GetCredential(ctx, job.UserID, platform.Provider())
	if errors.Is(err, store.ErrNotFound) {
		return failure(fmt.Sprintf("%s not connected", platform))
	}
	if err != nil {
		return failure(fmt.Sprintf("credential lookup failed: %v", err))
	}

	if cred.ExpiresWithin(s.refreshWindow) {
		refresher, ok := s.refreshers[platform.Provider()]
		if !ok {
			return failure(fmt.Sprintf("token refresh failed: no refresher for %s", platform.Provider()))
		}
		token, err := refresher.Refresh(ctx, cred)
		if err != nil {
			return failure(fmt.Sprintf("token refresh failed: %v", err))
		}
		if err := s.store.UpdateCredentialTokens(ctx, cred.ID,
			token.AccessToken, token.RefreshToken, token.ExpiresAt); err != nil {
			// Publishing can proceed with the in-memory token; the next job
			// will just refresh again.
			slog.Warn("persisting refreshed token",
				"job_id", job.ID, "provider", platform.Provider(), "error", err)
		}
		cred.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			cred.RefreshToken = token.RefreshToken
		}
		cred.ExpiresAt = token.ExpiresAt
	}

	publisher, ok := s.publishers[platform]
	if !ok {
		return failure(fmt.Sprintf("%v for %s", ErrNoPublisher, platform))
	}

	res, err := publisher.Publish(ctx, Request{
		Source:      src,
		Title:       job.Title,
		Description: job.Description,
		Credential:  cred,
	})
	if err != nil {
		return failure(err.Error())
	}

	return models.PlatformResult{Success: true, PostID: res.PostID, PostURL: res.PostURL}
}

// abort handles processor-fatal failures: every platform without a result
// gets an explicit failure entry (terminal jobs always carry one result per
// requested platform), then the job is marked failed with a top-level error.
func (s *Service) abort(ctx context.Context, job *models.Job, results models.ResultMap, msg string) {
	for _, platform := range job.Platforms {
		if _, done := results[platform]; !done {
			results[platform] = failure("job aborted: " + msg)
		}
	}
	if err := s.store.UpdateJobResults(ctx, job.ID, results); err != nil {
		slog.Error("persisting results for aborted job", "job_id", job.ID, "error", err)
	}
	if err := s.store.FinishJob(ctx, job.ID, models.JobStatusFailed, &msg); err != nil {
		slog.Error("marking job failed", "job_id", job.ID, "error", err)
		return
	}
	job.Results = results
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &msg
	completed := time.Now().UTC()
	job.CompletedAt = &completed
	s.mirrorJob(ctx, job)
	metrics.JobsFinishedTotal.WithLabelValues(string(models.JobStatusFailed)).Inc()
}

// mirrorJob refreshes the Redis copy of the job after a mutation. Best
// effort: the jobs table stays authoritative.
func (s *Service) mirrorJob(ctx context.Context, job *models.Job) {
	job.UpdatedAt = time.Now().UTC()
	if err := s.cache.SetJob(ctx, job, jobCacheTTL); err != nil {
		slog.Warn("mirroring job to cache", "job_id", job.ID, "error", err)
	}
}

func failure(msg string) models.PlatformResult {
	return models.PlatformResult{Success: false, Error: msg}
}

func outcome(r models.PlatformResult) string {
	if r.Success {
		return "success"
	}
	return "failure"
}

// driveSource adapts a resolved drive item to the Source interface.
type driveSource struct {
	drive drive.Client
	item  *drive.Item
}

func (s *driveSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	return s.drive.Download(ctx, s.item)
}

func (s *driveSource) URL(context.Context) (string, error) {
	return s.item.DownloadURL, nil
}
