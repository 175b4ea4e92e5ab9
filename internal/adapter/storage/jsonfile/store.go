package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

// Store keeps jobs in memory and mirrors them to a JSON file on every write.
// Update runs the state machine under the store mutex, so it is atomic per job.
type Store struct {
	mu       sync.RWMutex
	path     string
	jobs     map[string]*domain.TranslationJob
	observer port.JobObserver
	now      func() time.Time
}

type Option func(*Store)

func WithObserver(o port.JobObserver) Option {
	return func(s *Store) {
		s.observer = o
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(dataDir string, opts ...Option) (*Store, error) {
	path := filepath.Join(dataDir, "translations.json")

	store := &Store{
		path: path,
		jobs: make(map[string]*domain.TranslationJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	var list []*domain.TranslationJob
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}

	for _, j := range list {
		s.jobs[j.ID] = j
	}

	return nil
}

func (s *Store) save() error {
	tmpPath := s.path + ".tmp"

	data, err := json.MarshalIndent(s.sortedLocked(), "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

// sortedLocked returns the jobs ordered by creation time, oldest first.
func (s *Store) sortedLocked() []*domain.TranslationJob {
	list := make([]*domain.TranslationJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, j)
	}
	sort.Slice(list, func(a, b int) bool {
		if list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].ID < list[b].ID
		}
		return list[a].CreatedAt.Before(list[b].CreatedAt)
	})
	return list
}

func (s *Store) Create(_ context.Context, job *domain.TranslationJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	if err := s.save(); err != nil {
		delete(s.jobs, job.ID)
		return "", err
	}
	return job.ID, nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.TranslationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return j.Clone(), nil
}

func (s *Store) GetByExternalID(_ context.Context, externalJobID string) (*domain.TranslationJob, error) {
	if externalJobID == "" {
		return nil, domain.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.TranslationJob
	for _, j := range s.sortedLocked() {
		if j.ExternalJobID != externalJobID {
			continue
		}
		if best == nil || !j.State.IsTerminal() || best.State.IsTerminal() {
			best = j
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, t domain.Transition) (*domain.TranslationJob, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}

	next := j.Clone()
	changed, err := next.Apply(t, s.now())
	if err != nil {
		s.mu.Unlock()
		return j.Clone(), err
	}

	s.jobs[id] = next
	if err := s.save(); err != nil {
		s.jobs[id] = j
		s.mu.Unlock()
		return nil, err
	}
	snapshot := next.Clone()
	s.mu.Unlock()

	if changed && s.observer != nil {
		s.observer.OnJobUpdated(snapshot.Clone())
	}
	return snapshot, nil
}

func (s *Store) ListActive(_ context.Context) ([]*domain.TranslationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*domain.TranslationJob
	for _, j := range s.sortedLocked() {
		if !j.State.IsTerminal() {
			active = append(active, j.Clone())
		}
	}

	return active, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]*domain.TranslationJob, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.sortedLocked()
	ret := make([]*domain.TranslationJob, 0, limit)
	for i := len(list) - 1; i >= 0 && len(ret) < limit; i-- {
		ret = append(ret, list[i].Clone())
	}
	return ret, nil
}

var _ port.JobStore = (*Store)(nil)
