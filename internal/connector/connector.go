// Package connector defines the adapters that produce job posting records
// from external sources.
package connector

import (
	"context"
	"iter"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/ledger"
)

// Record is one posting as fetched from a source.
type Record struct {
	Source       string
	SourceItemID string
	Title        *string
	Company      *string
	URL          *string
	PublishedAt  *time.Time
	Raw          ledger.Document

	// Invalid is set when a field of the row could not be read. The record is
	// still stored as an ingestion item, which then fails reconciliation.
	Invalid error
}

// Connector yields records lazily. An error yielded by Fetch means the fetch
// itself failed and no further records follow.
type Connector interface {
	Name() string
	Fetch(ctx context.Context) iter.Seq2[Record, error]
}

type Factory func(settings *config.Settings, logger *zap.Logger) Connector

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the connector registered under name.
func (r *Registry) New(name string, settings *config.Settings, logger *zap.Logger) (Connector, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.Newf("unknown source %q (available: %v)", name, r.Names())
	}
	return f(settings, logger), nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
