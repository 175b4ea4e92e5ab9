package sqlite

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
)

type recordingObserver struct {
	mu   sync.Mutex
	jobs []*domain.TranslationJob
}

func (o *recordingObserver) OnJobUpdated(job *domain.TranslationJob) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, job)
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.jobs)
}

func newTestJobStore(t *testing.T, opts ...JobStoreOption) *JobStore {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewJobStore(store, opts...)
}

func createJob(t *testing.T, s *JobStore, created time.Time) *domain.TranslationJob {
	t.Helper()
	job := domain.NewTranslationJob("urn:abc", []domain.OutputFormat{{Format: "svf2", Views: []string{"3d"}}}, "alice", created)
	_, err := s.Create(context.Background(), job)
	require.NoError(t, err)
	return job
}

func TestJobStore_CreateAndGet(t *testing.T) {
	s := newTestJobStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := createJob(t, s, created)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.StatePending, got.State)
	assert.Equal(t, "urn:abc", got.SourceReference)
	assert.Equal(t, job.RequestedOutputs, got.RequestedOutputs)
	assert.Equal(t, "alice", got.RequestedBy)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, got.LastPolledAt.IsZero())
	assert.Nil(t, got.ErrorDetail)
	assert.Nil(t, got.ResultManifest)
}

func TestJobStore_GetMissing(t *testing.T) {
	s := newTestJobStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobStore_UpdateLifecycle(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestJobStore(t, WithObserver(obs))
	ctx := context.Background()
	job := createJob(t, s, time.Now().UTC())

	updated, err := s.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress, ExternalJobID: "ext-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, updated.State)
	assert.Equal(t, int64(2), updated.Version)

	observed := time.Now().UTC()
	_, err = s.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress, ProgressPercent: 40, ObservedAt: observed, Polled: true})
	require.NoError(t, err)

	manifest := json.RawMessage(`{"derivatives":[{"outputType":"svf2","status":"success"}]}`)
	_, err = s.Update(ctx, job.ID, domain.Transition{To: domain.StateSucceeded, Manifest: manifest, ObservedAt: observed.Add(time.Second)})
	require.NoError(t, err)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSucceeded, got.State)
	assert.Equal(t, 100, got.ProgressPercent)
	assert.Equal(t, "ext-1", got.ExternalJobID)
	assert.JSONEq(t, string(manifest), string(got.ResultManifest))
	assert.False(t, got.LastPolledAt.IsZero())
	assert.True(t, observed.Add(time.Second).Equal(got.LastEventAt))
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, 3, obs.count())
}

func TestJobStore_TerminalUpdateRejected(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestJobStore(t, WithObserver(obs))
	ctx := context.Background()
	job := createJob(t, s, time.Now().UTC())

	_, err := s.Update(ctx, job.ID, domain.Transition{To: domain.StateFailed, Error: &domain.ErrorDetail{Code: "submit-failed", Message: "boom"}})
	require.NoError(t, err)

	current, err := s.Update(ctx, job.ID, domain.Transition{To: domain.StateSucceeded, Manifest: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.NotNil(t, current)
	assert.Equal(t, domain.StateFailed, current.State)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.Equal(t, &domain.ErrorDetail{Code: "submit-failed", Message: "boom"}, got.ErrorDetail)
	assert.Nil(t, got.ResultManifest)
	assert.Equal(t, 1, obs.count())
}

func TestJobStore_BookkeepingDoesNotNotify(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestJobStore(t, WithObserver(obs))
	ctx := context.Background()
	job := createJob(t, s, time.Now().UTC())
	_, err := s.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress})
	require.NoError(t, err)

	updated, err := s.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress, IncrementAttempt: true, Polled: true})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.AttemptCount)
	assert.Equal(t, 1, obs.count())
}

func TestJobStore_ListActive(t *testing.T) {
	s := newTestJobStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	pending := createJob(t, s, base)
	running := createJob(t, s, base.Add(time.Second))
	done := createJob(t, s, base.Add(2*time.Second))
	cancelled := createJob(t, s, base.Add(3*time.Second))

	_, err := s.Update(ctx, running.ID, domain.Transition{To: domain.StateInProgress})
	require.NoError(t, err)
	_, err = s.Update(ctx, done.ID, domain.Transition{To: domain.StateInProgress})
	require.NoError(t, err)
	_, err = s.Update(ctx, done.ID, domain.Transition{To: domain.StateSucceeded})
	require.NoError(t, err)
	_, err = s.Update(ctx, cancelled.ID, domain.Transition{To: domain.StateCancelled})
	require.NoError(t, err)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, pending.ID, active[0].ID)
	assert.Equal(t, running.ID, active[1].ID)
}

func TestJobStore_ListRecent(t *testing.T) {
	s := newTestJobStore(t)
	base := time.Now().UTC()
	first := createJob(t, s, base)
	second := createJob(t, s, base.Add(time.Minute))
	third := createJob(t, s, base.Add(2*time.Minute))

	recent, err := s.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, third.ID, recent[0].ID)
	assert.Equal(t, second.ID, recent[1].ID)
	assert.NotEqual(t, first.ID, recent[1].ID)
}

func TestJobStore_GetByExternalID_PrefersActive(t *testing.T) {
	s := newTestJobStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	old := createJob(t, s, base)
	_, err := s.Update(ctx, old.ID, domain.Transition{To: domain.StateInProgress, ExternalJobID: "ext-1"})
	require.NoError(t, err)
	_, err = s.Update(ctx, old.ID, domain.Transition{To: domain.StateFailed})
	require.NoError(t, err)

	retry := createJob(t, s, base.Add(time.Minute))
	_, err = s.Update(ctx, retry.ID, domain.Transition{To: domain.StateInProgress, ExternalJobID: "ext-1"})
	require.NoError(t, err)

	got, err := s.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, retry.ID, got.ID)

	_, err = s.GetByExternalID(ctx, "ext-unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetByExternalID(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobStore_ConcurrentUpdatesStayConsistent(t *testing.T) {
	s := newTestJobStore(t)
	ctx := context.Background()
	job := createJob(t, s, time.Now().UTC())
	_, err := s.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		applied   int64
		maxStored int
	)
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, err := s.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress, ProgressPercent: p * 5})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrConflict)
				return
			}
			mu.Lock()
			applied++
			if p*5 > maxStored {
				maxStored = p * 5
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, got.State)
	assert.Equal(t, maxStored, got.ProgressPercent)
	assert.Equal(t, 2+applied, got.Version, "every successful update bumps the version exactly once")

	_, err = s.Update(ctx, job.ID, domain.Transition{To: domain.StateSucceeded})
	require.NoError(t, err)
	_, err = s.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress, ProgressPercent: 10})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	js := NewJobStore(store)
	job := createJob(t, js, time.Now().UTC())
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	got, err := NewJobStore(store).Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}
