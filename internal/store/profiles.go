package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spigell/job-aggregator/internal/ledger"
)

const profileColumns = `id, label, name, location, role, skills, data, created_at, updated_at`

func scanProfile(row scanner) (*ledger.CandidateProfile, error) {
	var p ledger.CandidateProfile
	err := row.Scan(&p.ID, &p.Label, &p.Name, &p.Location, &p.Role, &p.Skills, &p.Data, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile returns nil, nil when the profile does not exist.
func (q *Queries) GetProfile(ctx context.Context, id int64) (*ledger.CandidateProfile, error) {
	p, err := scanProfile(q.queryRow(ctx, `SELECT `+profileColumns+` FROM candidate_profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get candidate profile %d", id)
	}
	return p, nil
}

// GetProfileByLabel returns nil, nil when no profile carries the label.
func (q *Queries) GetProfileByLabel(ctx context.Context, label string) (*ledger.CandidateProfile, error) {
	p, err := scanProfile(q.queryRow(ctx, `SELECT `+profileColumns+` FROM candidate_profiles WHERE label = ?`, label))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get candidate profile by label %q", label)
	}
	return p, nil
}

// SaveProfile inserts the profile, or updates the one sharing its label.
func (q *Queries) SaveProfile(ctx context.Context, p *ledger.CandidateProfile) (int64, error) {
	now := time.Now().UTC()

	if p.Label == nil {
		id, err := q.insert(ctx, `INSERT INTO candidate_profiles
			(label, name, location, role, skills, data, created_at, updated_at)
			VALUES (NULL, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			p.Name, p.Location, p.Role, p.Skills, p.Data, now, now)
		if err != nil {
			return 0, storageErr(err, "insert candidate profile")
		}
		return id, nil
	}

	id, err := q.insert(ctx, `INSERT INTO candidate_profiles
		(label, name, location, role, skills, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (label) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			role = excluded.role,
			skills = excluded.skills,
			data = excluded.data,
			updated_at = excluded.updated_at
		RETURNING id`,
		*p.Label, p.Name, p.Location, p.Role, p.Skills, p.Data, now, now)
	if err != nil {
		return 0, storageErr(err, "save candidate profile %q", *p.Label)
	}
	return id, nil
}

func (q *Queries) ListProfiles(ctx context.Context) ([]ledger.CandidateProfile, error) {
	rows, err := q.query(ctx, `SELECT `+profileColumns+` FROM candidate_profiles ORDER BY id`)
	if err != nil {
		return nil, storageErr(err, "list candidate profiles")
	}
	defer rows.Close()

	var out []ledger.CandidateProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, storageErr(err, "scan candidate profile")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list candidate profiles")
	}
	return out, nil
}
