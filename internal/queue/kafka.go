package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/ledger"
)

// Kafka publishes jobs to a topic named after the queue. Offsets are
// committed on ack, so an unacked job is redelivered to the consumer group.
type Kafka struct {
	brokers []string
	topic   string
	groupID string
	writer  *kafka.Writer
	logger  *zap.Logger

	readerOnce sync.Once
	reader     *kafka.Reader
}

var _ Queue = (*Kafka)(nil)

func NewKafka(brokers []string, topic, groupID string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (k *Kafka) Backend() string {
	return config.BackendKafka
}

// Ping succeeds when any broker accepts a connection.
func (k *Kafka) Ping(ctx context.Context) error {
	var errs error
	for _, broker := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	if errs == nil {
		errs = errors.New("no kafka brokers configured")
	}
	return ledger.WithKind(errs, ledger.KindQueue)
}

func (k *Kafka) Enqueue(ctx context.Context, job Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(job.RunID, 10)),
		Value: data,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return ledger.WithKind(errors.Wrapf(err, "publish to %s", k.topic), ledger.KindQueue)
	}
	return nil
}

func (k *Kafka) consumer() *kafka.Reader {
	k.readerOnce.Do(func() {
		k.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  k.brokers,
			Topic:    k.topic,
			GroupID:  k.groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	})
	return k.reader
}

func (k *Kafka) Dequeue(ctx context.Context) (*Delivery, error) {
	reader := k.consumer()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ledger.WithKind(errors.Wrapf(err, "fetch from %s", k.topic), ledger.KindQueue)
		}

		job, err := DecodeJob(msg.Value)
		if err != nil {
			k.logger.Error("dropping undecodable job",
				zap.String("queue", k.topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if err := reader.CommitMessages(ctx, msg); err != nil {
				return nil, ledger.WithKind(errors.Wrap(err, "drop undecodable job"), ledger.KindQueue)
			}
			continue
		}

		return NewDelivery(job, func(ctx context.Context) error {
			if err := reader.CommitMessages(ctx, msg); err != nil {
				return ledger.WithKind(errors.Wrapf(err, "ack job %s", job.ID), ledger.KindQueue)
			}
			return nil
		}), nil
	}
}

func (k *Kafka) Close() error {
	err := k.writer.Close()
	if k.reader != nil {
		err = errors.CombineErrors(err, k.reader.Close())
	}
	return err
}
