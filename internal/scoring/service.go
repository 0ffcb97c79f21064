package scoring

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/ledger"
	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/metrics"
	"github.com/spigell/job-aggregator/internal/store"
)

// RunCreator is satisfied by *store.Store and *store.Tx.
type RunCreator interface {
	CreateScoringRun(ctx context.Context, run *ledger.ScoringRun) (int64, error)
}

// CreateRun records a started scoring run. Nothing is scored yet; committing
// is up to the caller.
func CreateRun(ctx context.Context, q RunCreator, profileID int64, ingestionRunID *int64, meta ledger.Document) (*ledger.ScoringRun, error) {
	if meta == nil {
		meta = ledger.Document{}
	}
	run := &ledger.ScoringRun{
		ProfileID:      profileID,
		IngestionRunID: ingestionRunID,
		Status:         ledger.RunStarted,
		StartedAt:      time.Now().UTC(),
		Meta:           meta,
	}

	id, err := q.CreateScoringRun(ctx, run)
	if err != nil {
		return nil, err
	}
	run.ID = id
	return run, nil
}

type Service struct {
	store    *store.Store
	assessor ai.Assessor
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithAssessor attaches an AI second opinion to every successfully scored job.
func WithAssessor(a ai.Assessor) Option {
	return func(s *Service) { s.assessor = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st *store.Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: logger.WithFields(log),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type runCounts struct {
	finished int
	failed   int
}

func (c runCounts) document() ledger.Document {
	return ledger.Document{
		"finished": c.finished,
		"failed":   c.failed,
		"jobs":     c.finished + c.failed,
	}
}

// ScoreRun scores every stored job posting against the run's profile,
// committing one score item at a time. Only a missing run or profile, or a
// storage failure outside a single item, aborts the run.
func (s *Service) ScoreRun(ctx context.Context, runID int64) error {
	run, err := s.store.GetScoringRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return ledger.NotFoundf("scoring_run not found: %d", runID)
	}

	profile, err := s.store.GetProfile(ctx, run.ProfileID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ledger.NotFoundf("candidate_profile not found: %d", run.ProfileID)
	}

	log := s.logger.With(zap.Int64(logger.FieldRunID, run.ID), zap.Int64(logger.FieldProfileID, profile.ID))

	// Runs are not claimed before scoring, so a redelivered run is scored
	// again. Its terminal status is kept.
	alreadyTerminal := run.Status.Terminal()
	if alreadyTerminal {
		log.Warn("scoring_run_already_terminal", zap.String("status", string(run.Status)))
	}

	var counts runCounts

	jobIDs, err := s.store.ListJobIDs(ctx)
	if err != nil {
		return s.fail(ctx, run, counts, err, alreadyTerminal, log)
	}

	for _, jobID := range jobIDs {
		status, err := s.scoreJob(ctx, run, profile, jobID, log)
		if err != nil {
			return s.fail(ctx, run, counts, err, alreadyTerminal, log)
		}
		if status == ledger.ScoreFinished {
			counts.finished++
		} else {
			counts.failed++
		}
		s.metrics.ScoreItem(string(status))
	}

	if !alreadyTerminal {
		meta := run.Meta.Merge(ledger.Document{"counts": counts.document()})
		if err := s.store.FinishScoringRun(ctx, run.ID, ledger.RunFinished, s.now(), meta); err != nil {
			return err
		}
		s.metrics.ScoringRun(string(ledger.RunFinished))
	}

	log.Info("scoring_finished",
		zap.Int("finished", counts.finished),
		zap.Int("failed", counts.failed),
	)
	return nil
}

// scoreJob writes one score item in its own transaction. A scoring failure is
// recorded on the item; only failures to write the ledger itself are returned.
func (s *Service) scoreJob(ctx context.Context, run *ledger.ScoringRun, profile *ledger.CandidateProfile, jobID int64, log *zap.Logger) (ledger.ScoreStatus, error) {
	job, loadErr := s.store.GetJob(ctx, jobID)

	var assessment ledger.Document
	if loadErr == nil && job != nil && s.assessor != nil {
		assessment = s.assess(ctx, profile, job, log)
	}

	var status ledger.ScoreStatus
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		item := &ledger.ScoreItem{
			RunID:   run.ID,
			JobID:   jobID,
			Status:  ledger.ScoreStarted,
			Matched: ledger.Strings{},
			Missing: ledger.Strings{},
			Reasons: ledger.Document{},
		}
		id, err := tx.CreateScoreItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id

		scoreErr := tx.Savepoint(ctx, func() error {
			if loadErr != nil {
				return loadErr
			}
			if job == nil {
				return ledger.WithKind(errors.Newf("job_posting not found: %d", jobID), ledger.KindValidation)
			}

			res := Score(profile.Skills, job.Title, job.Company, job.URL, job.Raw)
			reasons := res.Reasons
			if assessment != nil {
				reasons = reasons.Merge(ledger.Document{"ai": assessment})
			}

			item.Status = ledger.ScoreFinished
			item.Score = &res.Score
			item.Matched = res.Matched
			item.Missing = res.Missing
			item.Reasons = reasons
			return tx.UpdateScoreItem(ctx, item)
		})
		if scoreErr == nil {
			status = ledger.ScoreFinished
			return nil
		}

		failure := ledger.NewFailure(scoreErr, ledger.KindScoring)
		errID, err := tx.CreateScoringError(ctx, &ledger.ScoringError{
			ItemID:  item.ID,
			Kind:    failure.Kind,
			Message: failure.Message,
			Trace:   failure.Trace,
			Data:    ledger.Document{"job_id": jobID, "run_id": run.ID},
		})
		if err != nil {
			return err
		}

		item.Status = ledger.ScoreFailed
		item.Score = nil
		item.Matched = ledger.Strings{}
		item.Missing = ledger.Strings{}
		item.Reasons = ledger.Document{}
		item.ErrorID = &errID
		if err := tx.UpdateScoreItem(ctx, item); err != nil {
			return err
		}

		log.Warn("scoring_item_failed",
			zap.Int64("job_id", jobID),
			zap.String(logger.FieldErrorType, string(failure.Kind)),
			zap.String("message", failure.Message),
		)
		status = ledger.ScoreFailed
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "score job %d", jobID)
	}
	return status, nil
}

func (s *Service) assess(ctx context.Context, profile *ledger.CandidateProfile, job *ledger.JobPosting, log *zap.Logger) ledger.Document {
	assessment, err := s.assessor.Assess(ctx, profile, job)
	if err != nil {
		log.Warn("ai_assessment_failed", zap.Int64("job_id", job.ID), zap.Error(err))
		return ledger.Document{"error": err.Error()}
	}
	return assessment.Document()
}

func (s *Service) fail(ctx context.Context, run *ledger.ScoringRun, counts runCounts, cause error, alreadyTerminal bool, log *zap.Logger) error {
	failure := ledger.NewFailure(cause, ledger.KindInternal)
	log.Error("scoring_run_failed",
		zap.String(logger.FieldErrorType, string(failure.Kind)),
		zap.Error(cause),
	)
	if alreadyTerminal {
		return cause
	}

	meta := run.Meta.Merge(ledger.Document{
		"counts": counts.document(),
		"fatal":  failure.Document(),
	})
	if err := s.store.FinishScoringRun(ctx, run.ID, ledger.RunFailed, s.now(), meta); err != nil {
		return errors.WithSecondaryError(cause, err)
	}
	s.metrics.ScoringRun(string(ledger.RunFailed))
	return cause
}
