// Package storetest opens throwaway SQLite stores for package tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spigell/job-aggregator/internal/ledger"
	"github.com/spigell/job-aggregator/internal/store"
)

// New opens a migrated SQLite store in a temporary directory.
// It is closed automatically via t.Cleanup().
func New(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "jobs.sqlite3"), nil)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}

	return s
}

// Profile stores a candidate profile and returns its id.
func Profile(t *testing.T, s *store.Store, label string, skills ...string) int64 {
	t.Helper()

	p := &ledger.CandidateProfile{Skills: ledger.Strings(skills), Data: ledger.Document{}}
	if label != "" {
		p.Label = &label
	}

	id, err := s.SaveProfile(context.Background(), p)
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}
	return id
}

// Job stores a job posting and returns its id.
func Job(t *testing.T, s *store.Store, source, sourceItemID, title string, raw ledger.Document) int64 {
	t.Helper()

	j := &ledger.JobPosting{Source: source, SourceItemID: sourceItemID, Raw: raw}
	if title != "" {
		j.Title = &title
	}

	id, err := s.CreateJob(context.Background(), j)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return id
}
