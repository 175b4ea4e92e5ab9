package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/storage/jsonfile"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
)

func testPollerConfig() PollerConfig {
	return PollerConfig{
		Tick:           time.Second,
		BackoffBase:    2 * time.Second,
		BackoffMax:     60 * time.Second,
		MaxAttempts:    5,
		Concurrency:    4,
		JobMaxDuration: 30 * time.Minute,
		CallTimeout:    5 * time.Second,
		LeaseTTL:       10 * time.Second,
	}
}

type pollerEnv struct {
	store   *jsonfile.Store
	gateway *fakeGateway
	clock   *fakeClock
	bus     *Dispatcher
}

func newTestPoller(env *pollerEnv, cfg PollerConfig) *StatusPoller {
	return NewStatusPoller(env.store, env.gateway, cfg, WithPollerClock(env.clock.Now))
}

func setupPoller(t *testing.T) (*pollerEnv, *StatusPoller) {
	t.Helper()
	env := &pollerEnv{gateway: newFakeGateway(), clock: newFakeClock(), bus: NewDispatcher(64)}
	env.store = newTestStore(t, env.clock, env.bus)
	return env, newTestPoller(env, testPollerConfig())
}

func tick(p *StatusPoller) {
	p.Tick(context.Background())
	p.Wait()
}

func TestStatusPoller_SuccessFlow(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	sub := env.bus.Subscribe(job.ID)
	defer sub.Close()

	manifest := json.RawMessage(`{"status":"success","derivatives":[{"outputType":"svf2"}]}`)
	env.gateway.on("ext-1",
		statusResult{report: domain.Progressing{Percent: 40}},
		statusResult{report: domain.Completed{Manifest: manifest}},
	)

	tick(p)
	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, domain.StateInProgress, got.State)
	assert.Equal(t, 40, got.ProgressPercent)
	assert.False(t, got.LastPolledAt.IsZero())

	env.clock.Advance(2 * time.Second)
	tick(p)
	got = mustGet(t, env.store, job.ID)
	assert.Equal(t, domain.StateSucceeded, got.State)
	assert.Equal(t, 100, got.ProgressPercent)
	assert.JSONEq(t, string(manifest), string(got.ResultManifest))

	notes := drain(sub)
	require.Len(t, notes, 2)
	assert.Equal(t, domain.StateInProgress, notes[0].State)
	assert.Equal(t, 40, notes[0].ProgressPercent)
	assert.Equal(t, domain.StateSucceeded, notes[1].State)

	env.clock.Advance(time.Minute)
	tick(p)
	assert.Equal(t, 2, env.gateway.callCount("ext-1"), "terminal jobs are not polled")
}

func TestStatusPoller_TransientFailuresExhaustAttempts(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.on("ext-1", statusResult{err: transientErr})

	for i := 1; i <= 5; i++ {
		tick(p)
		got := mustGet(t, env.store, job.ID)
		require.Equal(t, domain.StateInProgress, got.State, "tick %d", i)
		require.Equal(t, i, got.AttemptCount)
		env.clock.Advance(time.Minute)
	}

	tick(p)
	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, domain.StateFailed, got.State)
	require.NotNil(t, got.ErrorDetail)
	assert.Equal(t, domain.CodePollingExhausted, got.ErrorDetail.Code)
	assert.Equal(t, 6, env.gateway.callCount("ext-1"))
}

func TestStatusPoller_SuccessfulPollResetsAttempts(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.on("ext-1",
		statusResult{err: transientErr},
		statusResult{err: transientErr},
		statusResult{report: domain.Progressing{Percent: 10}},
	)

	for range 3 {
		tick(p)
		env.clock.Advance(time.Minute)
	}

	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, 0, got.AttemptCount)
	assert.Equal(t, 10, got.ProgressPercent)
}

func TestStatusPoller_PermanentErrorFailsImmediately(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.on("ext-1", statusResult{err: &domain.GatewayError{Op: "status", StatusCode: 404, Transient: false}})

	tick(p)

	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.Equal(t, domain.CodeGatewayRejected, got.ErrorDetail.Code)
}

func TestStatusPoller_VendorRejection(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.on("ext-1", statusResult{report: domain.Rejected{Code: "TranslationWorker-InternalFailure", Message: "boom"}})

	tick(p)

	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.Equal(t, &domain.ErrorDetail{Code: "TranslationWorker-InternalFailure", Message: "boom"}, got.ErrorDetail)
}

func TestStatusPoller_ForcesTimeout(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")

	env.clock.Advance(31 * time.Minute)
	tick(p)

	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, domain.StateTimedOut, got.State)
	assert.Equal(t, domain.CodeTimedOut, got.ErrorDetail.Code)
	assert.Equal(t, 0, env.gateway.callCount("ext-1"))
	assert.Equal(t, []string{"ext-1"}, env.gateway.cancelled)
}

func TestStatusPoller_SkipsUnsubmittedJobs(t *testing.T) {
	env, p := setupPoller(t)
	job := domain.NewTranslationJob("urn:abc", []domain.OutputFormat{{Format: "svf"}}, "alice", env.clock.Now())
	_, err := env.store.Create(context.Background(), job)
	require.NoError(t, err)

	tick(p)

	assert.Equal(t, 0, env.gateway.totalCalls())
	assert.Equal(t, domain.StatePending, mustGet(t, env.store, job.ID).State)
}

func TestStatusPoller_ScheduleWaitsForBaseInterval(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	p.Schedule(job.ID)

	tick(p)
	assert.Equal(t, 0, env.gateway.callCount("ext-1"))

	env.clock.Advance(2 * time.Second)
	tick(p)
	assert.Equal(t, 1, env.gateway.callCount("ext-1"))
}

func TestStatusPoller_BacksOffWhileNothingChanges(t *testing.T) {
	env, p := setupPoller(t)
	startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.on("ext-1", statusResult{report: domain.Progressing{Percent: 0}})

	tick(p)
	require.Equal(t, 1, env.gateway.callCount("ext-1"))

	// Unchanged progress grows the interval beyond base (at least 2s after jitter).
	env.clock.Advance(time.Second)
	tick(p)
	assert.Equal(t, 1, env.gateway.callCount("ext-1"))

	env.clock.Advance(time.Minute)
	tick(p)
	assert.Equal(t, 2, env.gateway.callCount("ext-1"))
}

func TestStatusPoller_AtMostOneInFlightPerJob(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.gate = make(chan struct{})

	p.Tick(context.Background())
	require.Eventually(t, func() bool { return env.gateway.callCount("ext-1") == 1 }, time.Second, 5*time.Millisecond)

	env.clock.Advance(3 * time.Second)
	p.Tick(context.Background())
	env.clock.Advance(3 * time.Second)
	p.Tick(context.Background())

	close(env.gateway.gate)
	p.Wait()

	assert.Equal(t, 1, env.gateway.callCount("ext-1"))
	assert.Equal(t, 1, env.gateway.maxInFlight)
	assert.Equal(t, domain.StateInProgress, mustGet(t, env.store, job.ID).State)
}

func TestStatusPoller_ConcurrencyCap(t *testing.T) {
	env := &pollerEnv{gateway: newFakeGateway(), clock: newFakeClock(), bus: NewDispatcher(16)}
	env.store = newTestStore(t, env.clock, env.bus)
	cfg := testPollerConfig()
	cfg.Concurrency = 2
	p := newTestPoller(env, cfg)

	for _, ext := range []string{"a", "b", "c", "d"} {
		startedJob(t, env.store, env.clock, ext)
	}
	env.gateway.gate = make(chan struct{})

	p.Tick(context.Background())
	require.Eventually(t, func() bool { return env.gateway.totalCalls() == 2 }, time.Second, 5*time.Millisecond)
	close(env.gateway.gate)
	p.Wait()

	assert.Equal(t, 2, env.gateway.maxInFlight)

	tick(p)
	assert.Equal(t, 4, env.gateway.totalCalls(), "jobs skipped for lack of a slot are picked up next tick")
}

func TestStatusPoller_LateResultAfterWebhookIsIgnored(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.on("ext-1", statusResult{report: domain.Progressing{Percent: 50}})
	env.gateway.gate = make(chan struct{})

	p.Tick(context.Background())
	require.Eventually(t, func() bool { return env.gateway.callCount("ext-1") == 1 }, time.Second, 5*time.Millisecond)

	_, err := env.store.Update(context.Background(), job.ID, domain.Transition{
		To:         domain.StateSucceeded,
		Manifest:   json.RawMessage(`{}`),
		ObservedAt: env.clock.Now(),
	})
	require.NoError(t, err)

	close(env.gateway.gate)
	p.Wait()

	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, domain.StateSucceeded, got.State)
	assert.Equal(t, 100, got.ProgressPercent)
}

func TestStatusPoller_StampsReportWithRequestTime(t *testing.T) {
	env, p := setupPoller(t)
	job := startedJob(t, env.store, env.clock, "ext-1")
	env.gateway.on("ext-1", statusResult{report: domain.Progressing{Percent: 30}})
	env.gateway.onFetch = func() { env.clock.Advance(3 * time.Second) }

	requestedAt := env.clock.Now()
	tick(p)

	got := mustGet(t, env.store, job.ID)
	assert.Equal(t, 30, got.ProgressPercent)
	assert.True(t, got.LastEventAt.Equal(requestedAt), "got %s, want %s", got.LastEventAt, requestedAt)
	assert.True(t, got.LastPolledAt.Equal(requestedAt.Add(3*time.Second)))
}

func TestStatusPoller_RunStopsOnCancel(t *testing.T) {
	env, _ := setupPoller(t)
	cfg := testPollerConfig()
	cfg.Tick = 5 * time.Millisecond
	cfg.JobMaxDuration = 0
	p := NewStatusPoller(env.store, env.gateway, cfg)
	startedJob(t, env.store, env.clock, "ext-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return env.gateway.callCount("ext-1") >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
