package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/spigell/job-aggregator/internal/ledger"
)

const jobColumns = `id, source, source_item_id, title, company, url, published_at, raw`

func scanJob(row scanner) (*ledger.JobPosting, error) {
	var j ledger.JobPosting
	if err := row.Scan(&j.ID, &j.Source, &j.SourceItemID, &j.Title, &j.Company, &j.URL, &j.PublishedAt, &j.Raw); err != nil {
		return nil, err
	}
	return &j, nil
}

// FindJob looks a posting up by its dedup key. It returns nil, nil on a miss.
func (q *Queries) FindJob(ctx context.Context, source, sourceItemID string) (*ledger.JobPosting, error) {
	j, err := scanJob(q.queryRow(ctx,
		`SELECT `+jobColumns+` FROM job_postings WHERE source = ? AND source_item_id = ?`,
		source, sourceItemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "find job posting %s/%s", source, sourceItemID)
	}
	return j, nil
}

// GetJob returns nil, nil when the posting does not exist.
func (q *Queries) GetJob(ctx context.Context, id int64) (*ledger.JobPosting, error) {
	j, err := scanJob(q.queryRow(ctx, `SELECT `+jobColumns+` FROM job_postings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get job posting %d", id)
	}
	return j, nil
}

// CreateJob inserts a new posting. A duplicate dedup key is reported with
// kind conflict so callers can tell it apart from other storage failures.
func (q *Queries) CreateJob(ctx context.Context, j *ledger.JobPosting) (int64, error) {
	var publishedAt any
	if j.PublishedAt != nil {
		publishedAt = j.PublishedAt.UTC()
	}

	id, err := q.insert(ctx, `INSERT INTO job_postings
		(source, source_item_id, title, company, url, published_at, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		j.Source, j.SourceItemID, j.Title, j.Company, j.URL, publishedAt, j.Raw)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, ledger.WithKind(errors.Wrapf(err, "job posting %s/%s already exists", j.Source, j.SourceItemID), ledger.KindConflict)
		}
		return 0, storageErr(err, "insert job posting %s/%s", j.Source, j.SourceItemID)
	}
	return id, nil
}

// ListJobIDs returns the id of every posting in insertion order.
func (q *Queries) ListJobIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.query(ctx, `SELECT id FROM job_postings ORDER BY id`)
	if err != nil {
		return nil, storageErr(err, "list job postings")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr(err, "scan job posting id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list job postings")
	}
	return ids, nil
}

func (q *Queries) ListJobs(ctx context.Context) ([]ledger.JobPosting, error) {
	rows, err := q.query(ctx, `SELECT `+jobColumns+` FROM job_postings ORDER BY id`)
	if err != nil {
		return nil, storageErr(err, "list job postings")
	}
	defer rows.Close()

	var out []ledger.JobPosting
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, storageErr(err, "scan job posting")
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list job postings")
	}
	return out, nil
}
