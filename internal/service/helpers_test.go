package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/storage/jsonfile"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type statusResult struct {
	report domain.StatusReport
	err    error
}

// fakeGateway replays a script of status results per vendor id; the last
// entry repeats. When gate is set, FetchStatus blocks until it is closed.
type fakeGateway struct {
	mu          sync.Mutex
	script      map[string][]statusResult
	calls       map[string]int
	cancelled   []string
	inFlight    int
	maxInFlight int
	gate        chan struct{}
	// onFetch runs inside every FetchStatus call, e.g. to move a clock.
	onFetch func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		script: make(map[string][]statusResult),
		calls:  make(map[string]int),
	}
}

func (g *fakeGateway) on(externalID string, results ...statusResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script[externalID] = append(g.script[externalID], results...)
}

func (g *fakeGateway) Submit(context.Context, string, []domain.OutputFormat) (string, error) {
	return "", &domain.GatewayError{Op: "submit", Transient: false}
}

func (g *fakeGateway) FetchStatus(ctx context.Context, externalID string) (domain.StatusReport, error) {
	g.mu.Lock()
	g.calls[externalID]++
	g.inFlight++
	g.maxInFlight = max(g.maxInFlight, g.inFlight)
	gate := g.gate
	onFetch := g.onFetch
	g.mu.Unlock()

	if onFetch != nil {
		onFetch()
	}

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	results := g.script[externalID]
	if len(results) == 0 {
		return domain.Progressing{}, nil
	}
	r := results[0]
	if len(results) > 1 {
		g.script[externalID] = results[1:]
	}
	return r.report, r.err
}

func (g *fakeGateway) Cancel(_ context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, externalID)
	return nil
}

func (g *fakeGateway) callCount(externalID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[externalID]
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

var transientErr = &domain.GatewayError{Op: "status", StatusCode: 503, Transient: true}

func newTestStore(t *testing.T, clock *fakeClock, observer port.JobObserver) *jsonfile.Store {
	t.Helper()
	opts := []jsonfile.Option{jsonfile.WithClock(clock.Now)}
	if observer != nil {
		opts = append(opts, jsonfile.WithObserver(observer))
	}
	store, err := jsonfile.NewStore(t.TempDir(), opts...)
	require.NoError(t, err)
	return store
}

// startedJob creates a job and moves it to InProgress under externalID.
func startedJob(t *testing.T, store port.JobStore, clock *fakeClock, externalID string) *domain.TranslationJob {
	t.Helper()
	ctx := context.Background()
	job := domain.NewTranslationJob("urn:abc", []domain.OutputFormat{{Format: "svf2"}}, "alice", clock.Now())
	_, err := store.Create(ctx, job)
	require.NoError(t, err)
	started, err := store.Update(ctx, job.ID, domain.Transition{To: domain.StateInProgress, ExternalJobID: externalID})
	require.NoError(t, err)
	return started
}

func mustGet(t *testing.T, store port.JobStore, id string) *domain.TranslationJob {
	t.Helper()
	job, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

// drain returns every notification already queued on s.
func drain(s *Subscription) []Notification {
	var out []Notification
	for {
		select {
		case n, ok := <-s.C():
			if !ok {
				return out
			}
			out = append(out, n)
		default:
			return out
		}
	}
}
