package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spigell/job-aggregator/internal/ledger"
)

const ingestionRunColumns = `id, source, started_at, finished_at, status, profile_id, meta`

func (q *Queries) CreateIngestionRun(ctx context.Context, run *ledger.IngestionRun) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO ingestion_runs
		(source, started_at, status, profile_id, meta)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		run.Source, run.StartedAt.UTC(), string(ledger.RunStarted), run.ProfileID, run.Meta)
	if err != nil {
		return 0, storageErr(err, "insert ingestion run")
	}
	return id, nil
}

// BindIngestionRunProfile records the profile resolution outcome on a started run.
func (q *Queries) BindIngestionRunProfile(ctx context.Context, id int64, profileID *int64, meta ledger.Document) error {
	err := q.updateOne(ctx, "ingestion run profile",
		`UPDATE ingestion_runs SET profile_id = ?, meta = ? WHERE id = ? AND status = ?`,
		profileID, meta, id, string(ledger.RunStarted))
	if err != nil {
		return ledger.WithKind(err, ledger.KindStorage)
	}
	return nil
}

// FinishIngestionRun moves a started run to a terminal status. Runs that are
// already terminal are never reopened or rewritten.
func (q *Queries) FinishIngestionRun(ctx context.Context, id int64, status ledger.RunStatus, finishedAt time.Time, meta ledger.Document) error {
	if !ledger.RunStarted.CanTransition(status) {
		return errors.Newf("invalid ingestion run transition to %s", status)
	}
	err := q.updateOne(ctx, "ingestion run status",
		`UPDATE ingestion_runs SET status = ?, finished_at = ?, meta = ? WHERE id = ? AND status = ?`,
		string(status), finishedAt.UTC(), meta, id, string(ledger.RunStarted))
	if err != nil {
		return ledger.WithKind(err, ledger.KindStorage)
	}
	return nil
}

// GetIngestionRun returns nil, nil when the run does not exist.
func (q *Queries) GetIngestionRun(ctx context.Context, id int64) (*ledger.IngestionRun, error) {
	var run ledger.IngestionRun
	var status string
	err := q.queryRow(ctx, `SELECT `+ingestionRunColumns+` FROM ingestion_runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Source, &run.StartedAt, &run.FinishedAt, &status, &run.ProfileID, &run.Meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get ingestion run %d", id)
	}
	run.Status = ledger.RunStatus(status)
	return &run, nil
}

func (q *Queries) CreateIngestionItem(ctx context.Context, item *ledger.IngestionItem) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO ingestion_items
		(run_id, source_item_id, status, job_id, raw)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		item.RunID, item.SourceItemID, string(item.Status), item.JobID, item.Raw)
	if err != nil {
		return 0, storageErr(err, "insert ingestion item %s", item.SourceItemID)
	}
	return id, nil
}

func (q *Queries) UpdateIngestionItem(ctx context.Context, id int64, status ledger.ItemStatus, jobID *int64) error {
	err := q.updateOne(ctx, "ingestion item",
		`UPDATE ingestion_items SET status = ?, job_id = ? WHERE id = ?`,
		string(status), jobID, id)
	if err != nil {
		return ledger.WithKind(err, ledger.KindStorage)
	}
	return nil
}

func (q *Queries) CreateIngestionError(ctx context.Context, e *ledger.IngestionError) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO ingestion_errors
		(item_id, error_type, message, traceback, data)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		e.ItemID, string(e.Kind), e.Message, e.Trace, e.Data)
	if err != nil {
		return 0, storageErr(err, "insert ingestion error for item %d", e.ItemID)
	}
	return id, nil
}

func (q *Queries) ListIngestionItems(ctx context.Context, runID int64) ([]ledger.IngestionItem, error) {
	rows, err := q.query(ctx, `SELECT id, run_id, source_item_id, status, job_id, raw
		FROM ingestion_items WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, storageErr(err, "list ingestion items for run %d", runID)
	}
	defer rows.Close()

	var out []ledger.IngestionItem
	for rows.Next() {
		var it ledger.IngestionItem
		var status string
		if err := rows.Scan(&it.ID, &it.RunID, &it.SourceItemID, &status, &it.JobID, &it.Raw); err != nil {
			return nil, storageErr(err, "scan ingestion item")
		}
		it.Status = ledger.ItemStatus(status)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list ingestion items for run %d", runID)
	}
	return out, nil
}

func (q *Queries) ListIngestionErrors(ctx context.Context, runID int64) ([]ledger.IngestionError, error) {
	rows, err := q.query(ctx, `SELECT e.id, e.item_id, e.error_type, e.message, COALESCE(e.traceback, ''), e.data
		FROM ingestion_errors e JOIN ingestion_items i ON i.id = e.item_id
		WHERE i.run_id = ? ORDER BY e.id`, runID)
	if err != nil {
		return nil, storageErr(err, "list ingestion errors for run %d", runID)
	}
	defer rows.Close()

	var out []ledger.IngestionError
	for rows.Next() {
		var e ledger.IngestionError
		var kind string
		if err := rows.Scan(&e.ID, &e.ItemID, &kind, &e.Message, &e.Trace, &e.Data); err != nil {
			return nil, storageErr(err, "scan ingestion error")
		}
		e.Kind = ledger.ErrorKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list ingestion errors for run %d", runID)
	}
	return out, nil
}
