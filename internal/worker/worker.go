// Package worker consumes scoring jobs and runs them one at a time.
package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/metrics"
	"github.com/spigell/job-aggregator/internal/queue"
	"github.com/spigell/job-aggregator/internal/scoring"
	"github.com/spigell/job-aggregator/internal/store"
	"github.com/spigell/job-aggregator/internal/utils"
)

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// StoreOpener returns a new store connection. The worker opens one per job
// and closes it when the job is done.
type StoreOpener func(ctx context.Context) (*store.Store, error)

type Config struct {
	Queue     queue.Queue
	OpenStore StoreOpener
	// Assessor is optional.
	Assessor ai.Assessor
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	// RequeueInFlight returns jobs left unacked by a previous worker before consuming.
	RequeueInFlight bool
	// MetricsAddr enables the /metrics endpoint when set.
	MetricsAddr string
}

type Worker struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config) *Worker {
	return &Worker{cfg: cfg, logger: logger.WithFields(cfg.Logger)}
}

// Run consumes jobs until ctx is cancelled or the queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker_starting",
		zap.String("backend", w.cfg.Queue.Backend()),
		zap.String("metrics_addr", w.cfg.MetricsAddr),
	)

	if w.cfg.RequeueInFlight {
		if err := w.requeue(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	if w.cfg.MetricsAddr != "" && w.cfg.Metrics != nil {
		g.Go(func() error {
			return w.cfg.Metrics.Serve(gCtx, w.cfg.MetricsAddr, w.logger)
		})
	}

	g.Go(func() error {
		// The metrics server goes down with the consumer.
		defer cancel()
		return w.consume(gCtx)
	})

	return g.Wait()
}

func (w *Worker) requeue(ctx context.Context) error {
	r, ok := w.cfg.Queue.(queue.Requeuer)
	if !ok {
		w.logger.Warn("requeue of in-flight jobs is not supported", zap.String("backend", w.cfg.Queue.Backend()))
		return nil
	}
	moved, err := r.RequeueInFlight(ctx)
	if err != nil {
		return errors.Wrap(err, "requeue in-flight jobs")
	}
	w.logger.Info("requeued in-flight jobs", zap.Int("count", moved))
	return nil
}

func (w *Worker) consume(ctx context.Context) error {
	attempt := 0
	for {
		d, err := w.cfg.Queue.Dequeue(ctx)
		switch {
		case err == nil:
			attempt = 0
		case ctx.Err() != nil, errors.Is(err, queue.ErrClosed):
			w.logger.Info("worker stopping")
			return nil
		default:
			delay := utils.Backoff(retryBaseDelay, retryMaxDelay, attempt)
			attempt++
			w.logger.Warn("dequeue failed", zap.Duration("retry_in", delay), zap.Error(err))
			if err := utils.WaitFor(ctx, delay); err != nil {
				return nil
			}
			continue
		}

		// A job that has started runs to completion even during shutdown.
		w.handle(context.WithoutCancel(ctx), d)
	}
}

// handle runs one scoring job. Scoring outcomes, failures included, live in
// the ledger, so the job is acked once ScoreRun returns. A job whose store
// could not be opened stays unacked.
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	started := time.Now()
	log := w.logger.With(
		zap.Int64(logger.FieldRunID, d.Job.RunID),
		zap.String("job_id", d.Job.ID.String()),
	)

	st, err := w.cfg.OpenStore(ctx)
	if err != nil {
		log.Error("worker_job_failed", zap.String("stage", "open store"), zap.Error(err))
		w.cfg.Metrics.WorkerJob("unacked", time.Since(started).Seconds())
		return
	}

	opts := []scoring.Option{scoring.WithMetrics(w.cfg.Metrics)}
	if w.cfg.Assessor != nil {
		opts = append(opts, scoring.WithAssessor(w.cfg.Assessor))
	}
	runErr := scoring.NewService(st, log, opts...).ScoreRun(ctx, d.Job.RunID)

	if err := st.Close(); err != nil {
		log.Warn("closing store", zap.Error(err))
	}

	if err := d.Ack(ctx); err != nil {
		log.Error("ack failed", zap.Error(err))
	}

	elapsed := time.Since(started)
	if runErr != nil {
		log.Error("worker_job_failed", zap.Duration("elapsed", elapsed), zap.Error(runErr))
		w.cfg.Metrics.WorkerJob("failed", elapsed.Seconds())
		return
	}
	log.Info("worker_job_completed", zap.Duration("elapsed", elapsed))
	w.cfg.Metrics.WorkerJob("completed", elapsed.Seconds())
}
