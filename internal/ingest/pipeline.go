// Package ingest pulls records from a connector into the ledger, one
// committed item at a time, and hands profile-bound runs over to scoring.
package ingest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/ledger"
	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/metrics"
	"github.com/spigell/job-aggregator/internal/queue"
	"github.com/spigell/job-aggregator/internal/scoring"
	"github.com/spigell/job-aggregator/internal/store"
)

const (
	ExitOK    = 0
	ExitFatal = 2
)

// Options are the per-invocation inputs of a run.
type Options struct {
	// Limit overrides the configured max-fetch-per-connector when set.
	Limit *int
	// Profile selects a candidate profile by numeric id or label.
	Profile string
}

type Result struct {
	RunID        int64
	ExitCode     int
	OK           int
	Skipped      int
	Errors       int
	ScoringRunID *int64
	Enqueued     bool
}

func (r *Result) document() ledger.Document {
	return ledger.Document{
		"ok":      r.OK,
		"skipped": r.Skipped,
		"error":   r.Errors,
	}
}

type Pipeline struct {
	store    *store.Store
	queue    queue.Queue
	settings *config.Settings
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Pipeline)

// WithQueue enables the scoring hand-off. Without a queue, scoring runs are
// still created but nothing is enqueued.
func WithQueue(q queue.Queue) Option {
	return func(p *Pipeline) { p.queue = q }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(st *store.Store, settings *config.Settings, log *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    st,
		settings: settings,
		logger:   logger.WithFields(log),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ClampFetchLimit prefers override over the configured default and bounds the
// result to [0, config.HardFetchCap].
func ClampFetchLimit(configured int, override *int) int {
	limit := configured
	if override != nil {
		limit = *override
	}
	if limit <= 0 {
		return 0
	}
	return min(limit, config.HardFetchCap)
}

// Run ingests up to the effective fetch limit of records from c. Record-level
// failures are stored in the ledger and do not fail the run; anything else
// marks the run failed and yields ExitFatal.
func (p *Pipeline) Run(ctx context.Context, c connector.Connector, opts Options) Result {
	source := c.Name()
	res := Result{ExitCode: ExitOK}

	run := &ledger.IngestionRun{
		Source:    source,
		StartedAt: p.now(),
		Status:    ledger.RunStarted,
		Meta:      ledger.Document{},
	}
	id, err := p.store.CreateIngestionRun(ctx, run)
	if err != nil {
		p.logger.Error("ingestion_run_failed",
			zap.String(logger.FieldSource, source),
			zap.String(logger.FieldErrorType, string(ledger.KindOf(err, ledger.KindStorage))),
			zap.Error(err),
		)
		res.ExitCode = ExitFatal
		return res
	}
	run.ID = id
	res.RunID = id

	log := p.logger.With(logger.RunFields(run.ID, source)...)

	if err := p.bindProfile(ctx, run, opts.Profile); err != nil {
		return p.fail(ctx, run, &res, err, nil, log)
	}

	log.Info("ingestion_run_started",
		zap.String("profile", opts.Profile),
		logger.ProfileField(run.ProfileID),
	)

	limit := ClampFetchLimit(p.settings.MaxFetchPerConnector, opts.Limit)
	if limit == 0 {
		log.Info("ingestion_run_noop_limit", zap.Int("limit", limit))
		if err := p.finish(ctx, run, &res, limit); err != nil {
			return p.fail(ctx, run, &res, err, limit, log)
		}
		return res
	}

	processed := 0
	for rec, err := range c.Fetch(ctx) {
		if err != nil {
			return p.fail(ctx, run, &res, err, limit, log)
		}
		if rec.Source == "" {
			rec.Source = source
		}

		status, err := p.ingestRecord(ctx, run, rec, log)
		if err != nil {
			return p.fail(ctx, run, &res, err, limit, log)
		}
		switch status {
		case ledger.ItemOK:
			res.OK++
		case ledger.ItemSkipped:
			res.Skipped++
		case ledger.ItemError:
			res.Errors++
		}
		p.metrics.IngestionItem(source, string(status))

		processed++
		if processed >= limit {
			break
		}
	}

	if err := p.finish(ctx, run, &res, limit); err != nil {
		return p.fail(ctx, run, &res, err, limit, log)
	}

	if run.ProfileID != nil {
		p.handOff(ctx, run, &res, log)
	}

	log.Info("ingestion_run_finished",
		zap.Int("ok", res.OK),
		zap.Int("skipped", res.Skipped),
		zap.Int("error", res.Errors),
	)
	return res
}

// bindProfile stamps the run with the selected profile. An unresolved
// selector is recorded as is and leaves the run unbound.
func (p *Pipeline) bindProfile(ctx context.Context, run *ledger.IngestionRun, selector string) error {
	if selector == "" {
		return nil
	}

	profile, err := p.resolveProfile(ctx, selector)
	if err != nil {
		return err
	}

	if profile != nil {
		run.ProfileID = &profile.ID
		run.Meta = run.Meta.Merge(ledger.Document{"profile": profile.Snapshot()})
	} else {
		run.Meta = run.Meta.Merge(ledger.Document{"profile": ledger.Document{"selector": selector}})
	}

	return p.store.BindIngestionRunProfile(ctx, run.ID, run.ProfileID, run.Meta)
}

func (p *Pipeline) resolveProfile(ctx context.Context, selector string) (*ledger.CandidateProfile, error) {
	if isDigits(selector) {
		if id, err := strconv.ParseInt(selector, 10, 64); err == nil {
			profile, err := p.store.GetProfile(ctx, id)
			if err != nil || profile != nil {
				return profile, err
			}
		}
	}
	return p.store.GetProfileByLabel(ctx, selector)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ingestRecord stores one item and its reconciliation outcome in a single
// transaction. The returned error is reserved for ledger write failures.
func (p *Pipeline) ingestRecord(ctx context.Context, run *ledger.IngestionRun, rec connector.Record, log *zap.Logger) (ledger.ItemStatus, error) {
	var status ledger.ItemStatus

	err := p.store.InTx(ctx, func(tx *store.Tx) error {
		item := &ledger.IngestionItem{
			RunID:        run.ID,
			SourceItemID: rec.SourceItemID,
			Status:       ledger.ItemOK,
			Raw:          rec.Raw,
		}
		itemID, err := tx.CreateIngestionItem(ctx, item)
		if err != nil {
			return err
		}

		var jobID int64
		recErr := tx.Savepoint(ctx, func() error {
			var err error
			status, jobID, err = reconcile(ctx, tx, rec)
			if err != nil {
				return err
			}
			return tx.UpdateIngestionItem(ctx, itemID, status, &jobID)
		})
		if recErr == nil {
			return nil
		}

		failure := ledger.NewFailure(recErr, ledger.KindInternal)
		_, err = tx.CreateIngestionError(ctx, &ledger.IngestionError{
			ItemID:  itemID,
			Kind:    failure.Kind,
			Message: failure.Message,
			Trace:   failure.Trace,
			Data: ledger.Document{
				"source":         rec.Source,
				"source_item_id": rec.SourceItemID,
			},
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateIngestionItem(ctx, itemID, ledger.ItemError, nil); err != nil {
			return err
		}

		log.Warn("ingestion_item_failed",
			zap.Int64("item_id", itemID),
			zap.String("source_item_id", rec.SourceItemID),
			zap.String(logger.FieldErrorType, string(failure.Kind)),
			zap.String("message", failure.Message),
		)
		status = ledger.ItemError
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "ingest record %q", rec.SourceItemID)
	}
	return status, nil
}

// reconcile links the record to an existing posting (skipped) or creates one (ok).
func reconcile(ctx context.Context, tx *store.Tx, rec connector.Record) (ledger.ItemStatus, int64, error) {
	if rec.Invalid != nil {
		return "", 0, ledger.WithKind(rec.Invalid, ledger.KindValidation)
	}
	if strings.TrimSpace(rec.SourceItemID) == "" {
		return "", 0, ledger.WithKind(errors.New("record has no source_item_id"), ledger.KindValidation)
	}

	existing, err := tx.FindJob(ctx, rec.Source, rec.SourceItemID)
	if err != nil {
		return "", 0, err
	}
	if existing != nil {
		return ledger.ItemSkipped, existing.ID, nil
	}

	job := &ledger.JobPosting{
		Source:       rec.Source,
		SourceItemID: rec.SourceItemID,
		Title:        rec.Title,
		Company:      rec.Company,
		URL:          rec.URL,
		PublishedAt:  rec.PublishedAt,
		Raw:          rec.Raw,
	}

	var jobID int64
	err = tx.Savepoint(ctx, func() error {
		var err error
		jobID, err = tx.CreateJob(ctx, job)
		return err
	})
	if err == nil {
		return ledger.ItemOK, jobID, nil
	}
	if ledger.KindOf(err, ledger.KindInternal) != ledger.KindConflict {
		return "", 0, err
	}

	// Another run inserted the same posting after our lookup.
	winner, findErr := tx.FindJob(ctx, rec.Source, rec.SourceItemID)
	if findErr != nil {
		return "", 0, errors.WithSecondaryError(findErr, err)
	}
	if winner == nil {
		return "", 0, err
	}
	return ledger.ItemSkipped, winner.ID, nil
}

func (p *Pipeline) finish(ctx context.Context, run *ledger.IngestionRun, res *Result, limit int) error {
	run.Meta = run.Meta.Merge(res.document(), ledger.Document{"limit": limit})
	if err := p.store.FinishIngestionRun(ctx, run.ID, ledger.RunFinished, p.now(), run.Meta); err != nil {
		return err
	}
	run.Status = ledger.RunFinished
	p.metrics.IngestionRun(run.Source, string(ledger.RunFinished))
	return nil
}

// handOff creates the scoring run for a profile-bound ingestion run and
// enqueues it. Failures are logged only: ingestion already succeeded.
func (p *Pipeline) handOff(ctx context.Context, run *ledger.IngestionRun, res *Result, log *zap.Logger) {
	scoringRun, err := scoring.CreateRun(ctx, p.store, *run.ProfileID, &run.ID, ledger.Document{"source": run.Source})
	if err != nil {
		log.Warn("scoring_enqueue_failed", logger.ProfileField(run.ProfileID), zap.Error(err))
		return
	}
	res.ScoringRunID = &scoringRun.ID

	if p.queue == nil {
		log.Warn("scoring_enqueue_failed",
			logger.ProfileField(run.ProfileID),
			zap.Int64("scoring_run_id", scoringRun.ID),
			zap.String("reason", "no queue configured"),
		)
		return
	}
	res.Enqueued = queue.EnqueueScoringRun(ctx, p.queue, scoringRun.ID, p.logger, p.metrics)
}

// fail marks the run failed with the counts reached so far. limit is nil when
// the failure happened before it was computed.
func (p *Pipeline) fail(ctx context.Context, run *ledger.IngestionRun, res *Result, cause error, limit any, log *zap.Logger) Result {
	failure := ledger.NewFailure(cause, ledger.KindInternal)
	res.ExitCode = ExitFatal

	log.Error("ingestion_run_failed",
		zap.String(logger.FieldErrorType, string(failure.Kind)),
		zap.Error(cause),
	)

	if run.Status.Terminal() {
		return *res
	}

	run.Meta = run.Meta.Merge(res.document(), ledger.Document{
		"fatal": failure.Document(),
		"limit": limit,
	})
	if err := p.store.FinishIngestionRun(ctx, run.ID, ledger.RunFailed, p.now(), run.Meta); err != nil {
		log.Error("ingestion_run_failed", zap.String("stage", "mark failed"), zap.Error(err))
		return *res
	}
	run.Status = ledger.RunFailed
	p.metrics.IngestionRun(run.Source, string(ledger.RunFailed))
	return *res
}
