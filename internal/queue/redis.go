package queue

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/ledger"
)

const pollTimeout = 5 * time.Second

// Redis keeps pending jobs in a list named after the queue. Dequeued jobs are
// moved atomically to "<name>:processing" and removed from there on ack.
type Redis struct {
	rdb        *redis.Client
	name       string
	processing string
	logger     *zap.Logger
}

var (
	_ Queue    = (*Redis)(nil)
	_ Requeuer = (*Redis)(nil)
)

func NewRedis(url, name string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opts.DialTimeout = 2 * time.Second
	// BLMOVE holds the connection for up to pollTimeout.
	opts.ReadTimeout = pollTimeout + 2*time.Second

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Redis{
		rdb:        redis.NewClient(opts),
		name:       name,
		processing: name + ":processing",
		logger:     logger,
	}, nil
}

func (r *Redis) Backend() string {
	return config.BackendRedis
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Enqueue(ctx context.Context, job Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	if err := r.rdb.LPush(ctx, r.name, data).Err(); err != nil {
		return ledger.WithKind(errors.Wrapf(err, "push to %s", r.name), ledger.KindQueue)
	}
	return nil
}

func (r *Redis) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		payload, err := r.rdb.BLMove(ctx, r.name, r.processing, "RIGHT", "LEFT", pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrClosed
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ledger.WithKind(errors.Wrapf(err, "pop from %s", r.name), ledger.KindQueue)
		}

		job, err := DecodeJob([]byte(payload))
		if err != nil {
			r.logger.Error("dropping undecodable job", zap.String("queue", r.name), zap.Error(err))
			if err := r.rdb.LRem(ctx, r.processing, 1, payload).Err(); err != nil {
				return nil, ledger.WithKind(errors.Wrap(err, "drop undecodable job"), ledger.KindQueue)
			}
			continue
		}

		return NewDelivery(job, func(ctx context.Context) error {
			if err := r.rdb.LRem(ctx, r.processing, 1, payload).Err(); err != nil {
				return ledger.WithKind(errors.Wrapf(err, "ack job %s", job.ID), ledger.KindQueue)
			}
			return nil
		}), nil
	}
}

// RequeueInFlight moves jobs left in the processing list by a crashed worker
// back to the pending list.
func (r *Redis) RequeueInFlight(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := r.rdb.LMove(ctx, r.processing, r.name, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, ledger.WithKind(errors.Wrapf(err, "requeue from %s", r.processing), ledger.KindQueue)
		}
		moved++
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
