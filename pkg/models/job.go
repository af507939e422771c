package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a publish job. Transitions are
// forward-only: pending -> processing -> completed | failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PlatformResult is the outcome of one platform's publish attempt.
// PostID and PostURL are set only on success; Error only on failure.
type PlatformResult struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id,omitempty"`
	PostURL string `json:"post_url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResultMap maps platform name to that platform's publish result.
// Entries are appended as platforms finish and never removed.
type ResultMap map[Platform]PlatformResult

// AnySuccess reports whether at least one platform published successfully.
func (m ResultMap) AnySuccess() bool {
	for _, r := range m {
		if r.Success {
			return true
		}
	}
	return false
}

// Job is one request to publish a stored video to a set of platforms.
// The API returns a job id on POST /api/v1/posts; the client polls
// GET /api/v1/posts/{job_id} until status is completed or failed.
type Job struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	VideoID      uuid.UUID  `db:"video_id"      json:"video_id"`
	Platforms    []Platform `db:"platforms"     json:"platforms"`
	Title        string     `db:"title"         json:"title"`
	Description  string     `db:"description"   json:"description"`
	Status       JobStatus  `db:"status"        json:"status"`
	Results      ResultMap  `db:"results"       json:"results"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}
