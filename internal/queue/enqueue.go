package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/metrics"
)

const pingTimeout = 2 * time.Second

// EnqueueScoringRun hands runID to the workers. It never fails: an unreachable
// backend is a normal outcome reported by returning false.
func EnqueueScoringRun(ctx context.Context, q Queue, runID int64, log *zap.Logger, m *metrics.Metrics) bool {
	log = logger.WithFields(log, zap.Int64(logger.FieldRunID, runID))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := q.Ping(pingCtx)
	cancel()
	if err != nil {
		event := "queue_unavailable_scoring_skipped"
		if q.Backend() == config.BackendRedis {
			event = "redis_unavailable_scoring_skipped"
		}
		log.Warn(event, zap.Error(err))
		m.Enqueue("skipped")
		return false
	}

	job := NewScoreRunJob(runID)
	if err := q.Enqueue(ctx, job); err != nil {
		log.Warn("scoring_enqueue_failed", zap.Error(err))
		m.Enqueue("failed")
		return false
	}

	log.Info("scoring_enqueued", zap.String("job_id", job.ID.String()), zap.String("backend", q.Backend()))
	m.Enqueue("enqueued")
	return true
}
