package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spigell/job-aggregator/internal/ledger"
)

const scoringRunColumns = `id, profile_id, ingestion_run_id, status, started_at, finished_at, meta`

func scanScoringRun(row scanner) (*ledger.ScoringRun, error) {
	var run ledger.ScoringRun
	var status string
	if err := row.Scan(&run.ID, &run.ProfileID, &run.IngestionRunID, &status, &run.StartedAt, &run.FinishedAt, &run.Meta); err != nil {
		return nil, err
	}
	run.Status = ledger.RunStatus(status)
	return &run, nil
}

func (q *Queries) CreateScoringRun(ctx context.Context, run *ledger.ScoringRun) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO scoring_runs
		(profile_id, ingestion_run_id, status, started_at, meta)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		run.ProfileID, run.IngestionRunID, string(ledger.RunStarted), run.StartedAt.UTC(), run.Meta)
	if err != nil {
		return 0, storageErr(err, "insert scoring run")
	}
	return id, nil
}

// GetScoringRun returns nil, nil when the run does not exist.
func (q *Queries) GetScoringRun(ctx context.Context, id int64) (*ledger.ScoringRun, error) {
	run, err := scanScoringRun(q.queryRow(ctx, `SELECT `+scoringRunColumns+` FROM scoring_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get scoring run %d", id)
	}
	return run, nil
}

// ListScoringRuns returns runs in the given status, newest first.
func (q *Queries) ListScoringRuns(ctx context.Context, status ledger.RunStatus) ([]ledger.ScoringRun, error) {
	rows, err := q.query(ctx, `SELECT `+scoringRunColumns+` FROM scoring_runs WHERE status = ? ORDER BY id DESC`, string(status))
	if err != nil {
		return nil, storageErr(err, "list scoring runs")
	}
	defer rows.Close()

	var out []ledger.ScoringRun
	for rows.Next() {
		run, err := scanScoringRun(rows)
		if err != nil {
			return nil, storageErr(err, "scan scoring run")
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list scoring runs")
	}
	return out, nil
}

// FinishScoringRun moves a started run to a terminal status.
func (q *Queries) FinishScoringRun(ctx context.Context, id int64, status ledger.RunStatus, finishedAt time.Time, meta ledger.Document) error {
	if !ledger.RunStarted.CanTransition(status) {
		return errors.Newf("invalid scoring run transition to %s", status)
	}
	err := q.updateOne(ctx, "scoring run status",
		`UPDATE scoring_runs SET status = ?, finished_at = ?, meta = ? WHERE id = ? AND status = ?`,
		string(status), finishedAt.UTC(), meta, id, string(ledger.RunStarted))
	if err != nil {
		return ledger.WithKind(err, ledger.KindStorage)
	}
	return nil
}

func (q *Queries) CreateScoreItem(ctx context.Context, item *ledger.ScoreItem) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO score_items
		(scoring_run_id, job_id, status, score, skills_matched, skills_missing, reasons, error_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		item.RunID, item.JobID, string(item.Status), item.Score, item.Matched, item.Missing, item.Reasons, item.ErrorID)
	if err != nil {
		return 0, storageErr(err, "insert score item for job %d", item.JobID)
	}
	return id, nil
}

// UpdateScoreItem writes the outcome fields of an existing score item.
func (q *Queries) UpdateScoreItem(ctx context.Context, item *ledger.ScoreItem) error {
	err := q.updateOne(ctx, "score item",
		`UPDATE score_items SET status = ?, score = ?, skills_matched = ?, skills_missing = ?, reasons = ?, error_id = ?
		WHERE id = ?`,
		string(item.Status), item.Score, item.Matched, item.Missing, item.Reasons, item.ErrorID, item.ID)
	if err != nil {
		return ledger.WithKind(err, ledger.KindStorage)
	}
	return nil
}

func (q *Queries) CreateScoringError(ctx context.Context, e *ledger.ScoringError) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO scoring_errors
		(item_id, error_type, message, traceback, data)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		e.ItemID, string(e.Kind), e.Message, e.Trace, e.Data)
	if err != nil {
		return 0, storageErr(err, "insert scoring error for item %d", e.ItemID)
	}
	return id, nil
}

func (q *Queries) ListScoreItems(ctx context.Context, runID int64) ([]ledger.ScoreItem, error) {
	rows, err := q.query(ctx, `SELECT id, scoring_run_id, job_id, status, score, skills_matched, skills_missing, reasons, error_id
		FROM score_items WHERE scoring_run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, storageErr(err, "list score items for run %d", runID)
	}
	defer rows.Close()

	var out []ledger.ScoreItem
	for rows.Next() {
		var it ledger.ScoreItem
		var status string
		if err := rows.Scan(&it.ID, &it.RunID, &it.JobID, &status, &it.Score, &it.Matched, &it.Missing, &it.Reasons, &it.ErrorID); err != nil {
			return nil, storageErr(err, "scan score item")
		}
		it.Status = ledger.ScoreStatus(status)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list score items for run %d", runID)
	}
	return out, nil
}

func (q *Queries) ListScoringErrors(ctx context.Context, runID int64) ([]ledger.ScoringError, error) {
	rows, err := q.query(ctx, `SELECT e.id, e.item_id, e.error_type, e.message, e.traceback, e.data
		FROM scoring_errors e JOIN score_items i ON i.id = e.item_id
		WHERE i.scoring_run_id = ? ORDER BY e.id`, runID)
	if err != nil {
		return nil, storageErr(err, "list scoring errors for run %d", runID)
	}
	defer rows.Close()

	var out []ledger.ScoringError
	for rows.Next() {
		var e ledger.ScoringError
		var kind string
		if err := rows.Scan(&e.ID, &e.ItemID, &kind, &e.Message, &e.Trace, &e.Data); err != nil {
			return nil, storageErr(err, "scan scoring error")
		}
		e.Kind = ledger.ErrorKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list scoring errors for run %d", runID)
	}
	return out, nil
}
