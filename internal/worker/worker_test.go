package worker_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/job-aggregator/internal/ledger"
	"github.com/spigell/job-aggregator/internal/metrics"
	"github.com/spigell/job-aggregator/internal/queue"
	"github.com/spigell/job-aggregator/internal/queue/queuetest"
	"github.com/spigell/job-aggregator/internal/scoring"
	"github.com/spigell/job-aggregator/internal/store"
	"github.com/spigell/job-aggregator/internal/store/storetest"
	"github.com/spigell/job-aggregator/internal/worker"
)

type env struct {
	store  *store.Store
	opener worker.StoreOpener
	opened int
}

func newEnv(t *testing.T) *env {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jobs.sqlite3")
	s, err := store.OpenSQLite(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Migrate(context.Background())
	require.NoError(t, err)

	e := &env{store: s}
	e.opener = func(context.Context) (*store.Store, error) {
		e.opened++
		return store.OpenSQLite(path, nil)
	}
	return e
}

func runWorker(t *testing.T, w *worker.Worker) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestWorkerScoresEnqueuedRun(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	profileID := storetest.Profile(t, e.store, "go", "go")
	storetest.Job(t, e.store, "remoteok", "1", "Go Engineer", nil)

	run, err := scoring.CreateRun(ctx, e.store, profileID, nil, nil)
	require.NoError(t, err)

	q := queuetest.New()
	require.NoError(t, q.Enqueue(ctx, queue.NewScoreRunJob(run.ID)))

	m := metrics.New()
	core, logs := observer.New(zapcore.InfoLevel)
	stop := runWorker(t, worker.New(worker.Config{Queue: q, OpenStore: e.opener, Metrics: m, Logger: zap.New(core)}))

	require.Eventually(t, func() bool { return len(q.Acked()) == 1 }, 5*time.Second, 10*time.Millisecond)
	stop()

	stored, err := e.store.GetScoringRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunFinished, stored.Status)
	assert.Equal(t, 1, e.opened)
	assert.Equal(t, 1, logs.FilterMessage("worker_starting").Len())
	assert.Equal(t, 1, logs.FilterMessage("worker_job_completed").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerJobsTotal.WithLabelValues("completed")))
}

func TestWorkerAcksFailedRun(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	q := queuetest.New()
	require.NoError(t, q.Enqueue(ctx, queue.NewScoreRunJob(404)))

	core, logs := observer.New(zapcore.InfoLevel)
	stop := runWorker(t, worker.New(worker.Config{Queue: q, OpenStore: e.opener, Logger: zap.New(core)}))

	require.Eventually(t, func() bool { return len(q.Acked()) == 1 }, 5*time.Second, 10*time.Millisecond)
	stop()

	entries := logs.FilterMessage("worker_job_failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "scoring_run not found: 404")
}

func TestWorkerLeavesJobUnackedWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	q := queuetest.New()
	require.NoError(t, q.Enqueue(ctx, queue.NewScoreRunJob(1)))

	core, logs := observer.New(zapcore.InfoLevel)
	opener := func(context.Context) (*store.Store, error) { return nil, errors.New("database is locked") }
	stop := runWorker(t, worker.New(worker.Config{Queue: q, OpenStore: opener, Logger: zap.New(core)}))

	require.Eventually(t, func() bool { return logs.FilterMessage("worker_job_failed").Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.Empty(t, q.Acked())
}

// Runs are not claimed before scoring, so a redelivered job scores the whole
// table a second time under the same run id.
func TestWorkerRedeliveredRunIsScoredTwice(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	profileID := storetest.Profile(t, e.store, "go", "go")
	storetest.Job(t, e.store, "remoteok", "1", "Go Engineer", nil)
	storetest.Job(t, e.store, "remoteok", "2", "Rust Engineer", nil)

	run, err := scoring.CreateRun(ctx, e.store, profileID, nil, nil)
	require.NoError(t, err)

	q := queuetest.New()
	require.NoError(t, q.Enqueue(ctx, queue.NewScoreRunJob(run.ID)))
	require.NoError(t, q.Enqueue(ctx, queue.NewScoreRunJob(run.ID)))

	stop := runWorker(t, worker.New(worker.Config{Queue: q, OpenStore: e.opener}))
	require.Eventually(t, func() bool { return len(q.Acked()) == 2 }, 5*time.Second, 10*time.Millisecond)
	stop()

	items, err := e.store.ListScoreItems(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	stored, err := e.store.GetScoringRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunFinished, stored.Status)
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	q := queuetest.New()
	require.NoError(t, q.Close())

	err := worker.New(worker.Config{Queue: q, RequeueInFlight: true}).Run(context.Background())
	require.NoError(t, err)
}
