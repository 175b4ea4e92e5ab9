package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

const (
	jobsTable = "translation_jobs"

	// maxUpdateRetries bounds the optimistic check-and-set loop in Update.
	maxUpdateRetries = 5
)

var jobColumns = []string{
	"id", "external_job_id", "source_reference", "requested_outputs", "requested_by", "retry_of",
	"state", "progress_percent", "attempt_count", "last_polled_at", "last_event_at",
	"result_manifest", "error_code", "error_message", "version", "created_at", "updated_at",
}

type JobStore struct {
	db       *sql.DB
	builder  sq.StatementBuilderType
	observer port.JobObserver
	now      func() time.Time
}

type JobStoreOption func(*JobStore)

// WithObserver registers the component told about visible job changes.
func WithObserver(o port.JobObserver) JobStoreOption {
	return func(s *JobStore) {
		s.observer = o
	}
}

// WithClock overrides the time source used for update timestamps.
func WithClock(now func() time.Time) JobStoreOption {
	return func(s *JobStore) {
		s.now = now
	}
}

func NewJobStore(store *Store, opts ...JobStoreOption) *JobStore {
	s := &JobStore{
		db:      store.db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JobStore) Create(ctx context.Context, job *domain.TranslationJob) (string, error) {
	outputs, err := json.Marshal(job.RequestedOutputs)
	if err != nil {
		return "", fmt.Errorf("encode outputs: %w", err)
	}
	code, message := errorColumns(job.ErrorDetail)

	query, args, err := s.builder.Insert(jobsTable).Columns(jobColumns...).Values(
		job.ID, job.ExternalJobID, job.SourceReference, string(outputs), job.RequestedBy, job.RetryOf,
		string(job.State), job.ProgressPercent, job.AttemptCount, nullTime(job.LastPolledAt), nullTime(job.LastEventAt),
		nullManifest(job.ResultManifest), code, message, job.Version, job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	).ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return job.ID, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.TranslationJob, error) {
	query, args, err := s.builder.Select(jobColumns...).From(jobsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryOne(ctx, query, args...)
}

// GetByExternalID resolves a vendor job id. Several jobs can share one vendor
// id (a retry resubmits the same source); active jobs win, then the newest.
func (s *JobStore) GetByExternalID(ctx context.Context, externalJobID string) (*domain.TranslationJob, error) {
	if externalJobID == "" {
		return nil, domain.ErrNotFound
	}
	query, args, err := s.builder.Select(jobColumns...).From(jobsTable).
		Where(sq.Eq{"external_job_id": externalJobID}).
		OrderBy(
			"CASE WHEN state IN ('pending', 'inprogress') THEN 0 ELSE 1 END",
			"created_at DESC",
		).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryOne(ctx, query, args...)
}

// Update applies t with an optimistic check-and-set on the version column.
// On ErrIllegalTransition or ErrStaleUpdate the current snapshot is returned
// together with the error.
func (s *JobStore) Update(ctx context.Context, id string, t domain.Transition) (*domain.TranslationJob, error) {
	for range maxUpdateRetries {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := job.Version
		current := job.Clone()

		changed, err := job.Apply(t, s.now())
		if err != nil {
			return current, err
		}

		ok, err := s.compareAndSwap(ctx, job, expected)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if changed && s.observer != nil {
			s.observer.OnJobUpdated(job.Clone())
		}
		return job, nil
	}
	return nil, fmt.Errorf("%w: job %s", domain.ErrConflict, id)
}

func (s *JobStore) compareAndSwap(ctx context.Context, job *domain.TranslationJob, expected int64) (bool, error) {
	code, message := errorColumns(job.ErrorDetail)
	query, args, err := s.builder.Update(jobsTable).SetMap(map[string]any{
		"external_job_id":  job.ExternalJobID,
		"state":            string(job.State),
		"progress_percent": job.ProgressPercent,
		"attempt_count":    job.AttemptCount,
		"last_polled_at":   nullTime(job.LastPolledAt),
		"last_event_at":    nullTime(job.LastEventAt),
		"result_manifest":  nullManifest(job.ResultManifest),
		"error_code":       code,
		"error_message":    message,
		"version":          job.Version,
		"updated_at":       job.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": job.ID, "version": expected}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *JobStore) ListActive(ctx context.Context) ([]*domain.TranslationJob, error) {
	states := make([]string, len(domain.ActiveStates))
	for i, st := range domain.ActiveStates {
		states[i] = string(st)
	}
	query, args, err := s.builder.Select(jobColumns...).From(jobsTable).
		Where(sq.Eq{"state": states}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryMany(ctx, query, args...)
}

func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]*domain.TranslationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := s.builder.Select(jobColumns...).From(jobsTable).
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryMany(ctx, query, args...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *JobStore) queryOne(ctx context.Context, query string, args ...any) (*domain.TranslationJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *JobStore) queryMany(ctx context.Context, query string, args ...any) ([]*domain.TranslationJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	ret := make([]*domain.TranslationJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func scanJob(row rowScanner) (*domain.TranslationJob, error) {
	var (
		job          domain.TranslationJob
		outputs      string
		state        string
		lastPolledAt sql.NullTime
		lastEventAt  sql.NullTime
		manifest     sql.NullString
		errCode      string
		errMessage   string
	)
	if err := row.Scan(
		&job.ID, &job.ExternalJobID, &job.SourceReference, &outputs, &job.RequestedBy, &job.RetryOf,
		&state, &job.ProgressPercent, &job.AttemptCount, &lastPolledAt, &lastEventAt,
		&manifest, &errCode, &errMessage, &job.Version, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outputs), &job.RequestedOutputs); err != nil {
		return nil, fmt.Errorf("decode outputs for job %s: %w", job.ID, err)
	}
	job.State = domain.State(state)
	if lastPolledAt.Valid {
		job.LastPolledAt = lastPolledAt.Time.UTC()
	}
	if lastEventAt.Valid {
		job.LastEventAt = lastEventAt.Time.UTC()
	}
	if manifest.Valid && manifest.String != "" {
		job.ResultManifest = json.RawMessage(manifest.String)
	}
	if errCode != "" || errMessage != "" {
		job.ErrorDetail = &domain.ErrorDetail{Code: errCode, Message: errMessage}
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullManifest(m json.RawMessage) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(m), Valid: true}
}

func errorColumns(d *domain.ErrorDetail) (string, string) {
	if d == nil {
		return "", ""
	}
	return d.Code, d.Message
}

var _ port.JobStore = (*JobStore)(nil)
