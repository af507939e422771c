package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	CreateUser(ctx context.Context, user *models.User) error

	CreateVideo(ctx context.Context, video *models.Video) error
	GetVideo(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Video, error)

	GetCredential(ctx context.Context, userID uuid.UUID, provider string) (*models.Credential, error)
	UpsertCredential(ctx context.Context, cred *models.Credential) error
	UpdateCredentialTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, userID uuid.UUID, filter JobFilter) ([]*models.Job, int, error)
	ClaimNextJob(ctx context.Context) (*models.Job, error)
	UpdateJobResults(ctx context.Context, id uuid.UUID, results models.ResultMap) error
	FinishJob(ctx context.Context, id uuid.UUID, status models.JobStatus, errorMessage *string) error
}

// JobFilter controls job listing pagination.
type JobFilter struct {
	Page  int
	Limit int
}
