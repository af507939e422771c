package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5. OAuth tokens
// pass through the TokenCipher on every credential read and write.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cipher *TokenCipher
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, cipher *TokenCipher) *PostgresStore {
	return &PostgresStore{pool: pool, cipher: cipher}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// --- Videos ---

func (s *PostgresStore) CreateVideo(ctx context.Context, video *models.Video) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO videos (id, user_id, drive_item_id, file_name, title, description, product_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		video.ID, video.UserID, video.DriveItemID, video.FileName, video.Title,
		video.Description, video.ProductName, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create video: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVideo(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Video, error) {
	var v models.Video
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, drive_item_id, file_name, title, description, product_name, created_at, updated_at
		 FROM videos WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&v.ID, &v.UserID, &v.DriveItemID, &v.FileName, &v.Title,
		&v.Description, &v.ProductName, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return &v, nil
}

// --- Credentials ---

func (s *PostgresStore) GetCredential(ctx context.Context, userID uuid.UUID, provider string) (*models.Credential, error) {
	var c models.Credential
	var accessBox, refreshBox []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, provider, access_token, refresh_token, expires_at, account_id, page_id, ig_user_id, channel_id, created_at, updated_at
		 FROM credentials WHERE user_id = $1 AND provider = $2`, userID, provider,
	).Scan(&c.ID, &c.UserID, &c.Provider, &accessBox, &refreshBox, &c.ExpiresAt,
		&c.AccountID, &c.PageID, &c.IGUserID, &c.ChannelID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	if c.AccessToken, err = s.cipher.Decrypt(accessBox); err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	if len(refreshBox) > 0 {
		if c.RefreshToken, err = s.cipher.Decrypt(refreshBox); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return &c, nil
}

func (s *PostgresStore) UpsertCredential(ctx context.Context, cred *models.Credential) error {
	accessBox, err := s.cipher.Encrypt(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshBox []byte
	if cred.RefreshToken != "" {
		if refreshBox, err = s.cipher.Encrypt(cred.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO credentials (id, user_id, provider, access_token, refresh_token, expires_at, account_id, page_id, ig_user_id, channel_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   expires_at = EXCLUDED.expires_at,
		   account_id = EXCLUDED.account_id,
		   page_id = EXCLUDED.page_id,
		   ig_user_id = EXCLUDED.ig_user_id,
		   channel_id = EXCLUDED.channel_id,
		   updated_at = NOW()`,
		cred.ID, cred.UserID, cred.Provider, accessBox, refreshBox, cred.ExpiresAt,
		cred.AccountID, cred.PageID, cred.IGUserID, cred.ChannelID, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCredentialTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	accessBox, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshBox []byte
	if refreshToken != "" {
		if refreshBox, err = s.cipher.Encrypt(refreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE credentials SET access_token = $2, refresh_token = COALESCE(NULLIF($3, ''::bytea), refresh_token), expires_at = $4, updated_at = NOW()
		 WHERE id = $1`, id, accessBox, refreshBox, expiresAt)
	if err != nil {
		return fmt.Errorf("update credential tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, user_id, video_id, platforms, title, description, status, results, error_message, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	results, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("marshal job results: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, video_id, platforms, title, description, status, results, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.UserID, job.VideoID, platformNames(job.Platforms), job.Title,
		job.Description, string(job.Status), results, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, userID uuid.UUID, filter JobFilter) ([]*models.Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// ClaimNextJob atomically moves the oldest pending job to processing and
// returns it. FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming
// the same row. Returns ErrNotFound when no pending job exists.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'processing', started_at = NOW(), updated_at = NOW()
		 WHERE id = (
		   SELECT id FROM jobs WHERE status = 'pending'
		   ORDER BY created_at ASC
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 RETURNING `+jobColumns)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJobResults(ctx context.Context, id uuid.UUID, results models.ResultMap) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal job results: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET results = $2, updated_at = NOW() WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("update job results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishJob moves a processing job to its terminal status. The WHERE guard
// makes the transition race-safe: a job already terminal is never rewritten.
func (s *PostgresStore) FinishJob(ctx context.Context, id uuid.UUID, status models.JobStatus, errorMessage *string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: finish status must be completed or failed, got %s", ErrInvalidTransition, status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id, string(status), errorMessage)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("finish job: %w", err)
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var platforms []string
	var status string
	var results []byte
	err := row.Scan(&j.ID, &j.UserID, &j.VideoID, &platforms, &j.Title, &j.Description,
		&status, &results, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	j.Status = models.JobStatus(status)
	j.Platforms = make([]models.Platform, len(platforms))
	for i, p := range platforms {
		j.Platforms[i] = models.Platform(p)
	}
	j.Results = models.ResultMap{}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &j.Results); err != nil {
			return nil, fmt.Errorf("unmarshal job results: %w", err)
		}
	}
	return &j, nil
}

func platformNames(platforms []models.Platform) []string {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return names
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
