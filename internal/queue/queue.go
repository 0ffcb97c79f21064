// Package queue carries "score this run" instructions from the ingestion
// pipeline to workers. Delivery is at least once: a job is only removed from
// the backend once its Delivery is acked.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/ledger"
)

const KindScoreRun = "score_run"

// ErrClosed is returned by Dequeue once the queue has been closed.
var ErrClosed = errors.New("queue closed")

type Job struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	RunID      int64     `json:"run_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewScoreRunJob(runID int64) Job {
	return Job{
		ID:         uuid.New(),
		Kind:       KindScoreRun,
		RunID:      runID,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (j Job) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, ledger.WithKind(errors.Wrap(err, "encode job"), ledger.KindEncoding)
	}
	return data, nil
}

func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, ledger.WithKind(errors.Wrap(err, "decode job"), ledger.KindEncoding)
	}
	if j.Kind != KindScoreRun {
		return Job{}, ledger.WithKind(errors.Newf("unsupported job kind %q", j.Kind), ledger.KindValidation)
	}
	return j, nil
}

// Delivery is a dequeued job that stays pending until acked.
type Delivery struct {
	Job Job
	ack func(ctx context.Context) error
}

func NewDelivery(job Job, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Job: job, ack: ack}
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

type Queue interface {
	// Backend names the implementation, e.g. "redis".
	Backend() string
	// Ping is a cheap liveness probe run before every enqueue.
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)
	Close() error
}

// Requeuer is implemented by backends that can hand unacked jobs back to the queue.
type Requeuer interface {
	RequeueInFlight(ctx context.Context) (int, error)
}

// Open builds the backend selected in settings.
func Open(settings *config.Settings, logger *zap.Logger) (Queue, error) {
	switch settings.Queue.Backend {
	case config.BackendRedis:
		return NewRedis(settings.RedisURL, settings.Queue.Name, logger)
	case config.BackendKafka:
		return NewKafka(settings.Queue.Kafka.Brokers, settings.Queue.Name, settings.Queue.Kafka.GroupID, logger), nil
	default:
		return nil, errors.Newf("unknown queue backend %q", settings.Queue.Backend)
	}
}
