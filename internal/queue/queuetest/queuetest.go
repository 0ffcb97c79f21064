// Package queuetest provides an in-process queue for pipeline and worker tests.
package queuetest

import (
	"context"
	"sync"

	"github.com/spigell/job-aggregator/internal/queue"
)

// Memory is a queue.Queue backed by a buffered channel.
type Memory struct {
	// PingErr makes Ping fail, simulating an unreachable backend.
	PingErr error
	// EnqueueErr makes Enqueue fail after a successful Ping.
	EnqueueErr error

	jobs chan queue.Job

	mu       sync.Mutex
	enqueued []queue.Job
	acked    []queue.Job
	closed   bool
}

var _ queue.Queue = (*Memory)(nil)

func New() *Memory {
	return &Memory{jobs: make(chan queue.Job, 64)}
}

func (m *Memory) Backend() string {
	return "memory"
}

func (m *Memory) Ping(context.Context) error {
	return m.PingErr
}

func (m *Memory) Enqueue(_ context.Context, job queue.Job) error {
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	m.mu.Lock()
	m.enqueued = append(m.enqueued, job)
	m.mu.Unlock()
	m.jobs <- job
	return nil
}

func (m *Memory) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job, ok := <-m.jobs:
		if !ok {
			return nil, queue.ErrClosed
		}
		return queue.NewDelivery(job, func(context.Context) error {
			m.mu.Lock()
			m.acked = append(m.acked, job)
			m.mu.Unlock()
			return nil
		}), nil
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
	return nil
}

func (m *Memory) Enqueued() []queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.Job(nil), m.enqueued...)
}

func (m *Memory) Acked() []queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.Job(nil), m.acked...)
}
