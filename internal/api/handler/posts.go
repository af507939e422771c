package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/crosspost/internal/api/middleware"
	"github.com/kiranshivaraju/crosspost/internal/api/response"
	"github.com/kiranshivaraju/crosspost/internal/publish"
	"github.com/kiranshivaraju/crosspost/internal/store"
	"github.com/kiranshivaraju/crosspost/pkg/models"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Submitter defines the interface the submit handler depends on.
type Submitter interface {
	Submit(ctx context.Context, params publish.SubmitParams) (*models.Job, error)
}

// JobReader defines the store subset the read handlers depend on.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, userID uuid.UUID, filter store.JobFilter) ([]*models.Job, int, error)
}

// JobCache is the read side of the Redis job mirror the worker keeps warm.
type JobCache interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, bool, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/posts. The
// job is queued, not executed inline; the response is a 202 with the job id
// to poll.
func NewSubmitHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			VideoID     string   `json:"video_id"`
			Platforms   []string `json:"platforms"`
			Title       string   `json:"title"`
			Description string   `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.VideoID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "video_id is required", nil)
			return
		}
		videoID, err := uuid.Parse(req.VideoID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "video_id must be a valid UUID", nil)
			return
		}

		if len(req.Platforms) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "platforms must not be empty", nil)
			return
		}
		platforms := make([]models.Platform, 0, len(req.Platforms))
		for _, raw := range req.Platforms {
			p, err := models.ParsePlatform(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"unsupported platform", map[string]string{"platform": raw})
				return
			}
			platforms = append(platforms, p)
		}

		job, err := svc.Submit(r.Context(), publish.SubmitParams{
			UserID:      userID,
			VideoID:     videoID,
			Platforms:   platforms,
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			switch {
			case errors.Is(err, publish.ErrVideoNotFound):
				response.Error(w, http.StatusNotFound, "VIDEO_NOT_FOUND",
					"No video with that id belongs to you", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, submitResponse{
			JobID:  job.ID,
			Status: job.Status,
		})
	}
}

type submitResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/posts/{jobID}.
// Reads are idempotent: a terminal job returns the same body every time.
// The Redis mirror is consulted first so polling clients rarely touch
// Postgres; a miss or cache error falls back to the store.
func NewStatusHandler(reader JobReader, jobs JobCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			// A malformed id can never name a job; treat it like an unknown one.
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
			return
		}

		if jobs != nil {
			if cached, found, err := jobs.GetJob(r.Context(), jobID); err == nil && found {
				if cached.UserID != userID {
					response.Error(w, http.StatusForbidden, "FORBIDDEN",
						"This job belongs to another user", nil)
					return
				}
				response.JSON(w, cached)
				return
			}
		}

		job, err := reader.GetJob(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if job.UserID != userID {
			response.Error(w, http.StatusForbidden, "FORBIDDEN",
				"This job belongs to another user", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewListHandler returns an http.HandlerFunc for GET /api/v1/posts.
func NewListHandler(reader JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		page := queryInt(r, "page", 1)
		if page < 1 {
			page = 1
		}
		limit := queryInt(r, "limit", defaultPageLimit)
		if limit < 1 {
			limit = defaultPageLimit
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		jobs, total, err := reader.ListJobs(r.Context(), userID, store.JobFilter{Page: page, Limit: limit})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
