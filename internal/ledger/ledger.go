// Package ledger defines the records written by the ingestion and scoring
// pipelines and the state transitions they are allowed to make.
package ledger

import "time"

type RunStatus string

const (
	RunStarted  RunStatus = "started"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunFinished || s == RunFailed
}

// CanTransition allows only started -> finished and started -> failed.
func (s RunStatus) CanTransition(to RunStatus) bool {
	return s == RunStarted && to.Terminal()
}

type ItemStatus string

const (
	ItemOK      ItemStatus = "ok"
	ItemError   ItemStatus = "error"
	ItemSkipped ItemStatus = "skipped"
)

type ScoreStatus string

const (
	ScoreStarted  ScoreStatus = "started"
	ScoreFinished ScoreStatus = "finished"
	ScoreFailed   ScoreStatus = "failed"
)

// CandidateProfile is managed outside the pipelines; they only read it.
type CandidateProfile struct {
	ID        int64
	Label     *string
	Name      *string
	Location  *string
	Role      *string
	Skills    Strings
	Data      Document
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the copy of the profile stamped into ingestion run metadata.
func (p *CandidateProfile) Snapshot() Document {
	skills := make([]any, 0, len(p.Skills))
	for _, s := range p.Skills {
		skills = append(skills, s)
	}
	return Document{
		"id":       p.ID,
		"label":    deref(p.Label),
		"name":     deref(p.Name),
		"location": deref(p.Location),
		"role":     deref(p.Role),
		"skills":   skills,
	}
}

// JobPosting is unique by (Source, SourceItemID) and never updated once written.
type JobPosting struct {
	ID           int64
	Source       string
	SourceItemID string
	Title        *string
	Company      *string
	URL          *string
	PublishedAt  *time.Time
	Raw          Document
}

type IngestionRun struct {
	ID         int64
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	ProfileID  *int64
	Meta       Document
}

type IngestionItem struct {
	ID           int64
	RunID        int64
	SourceItemID string
	Status       ItemStatus
	JobID        *int64
	Raw          Document
}

type IngestionError struct {
	ID      int64
	ItemID  int64
	Kind    ErrorKind
	Message string
	Trace   string
	Data    Document
}

type ScoringRun struct {
	ID             int64
	ProfileID      int64
	IngestionRunID *int64
	Status         RunStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	Meta           Document
}

type ScoreItem struct {
	ID      int64
	RunID   int64
	JobID   int64
	Status  ScoreStatus
	Score   *float64
	Matched Strings
	Missing Strings
	Reasons Document
	ErrorID *int64
}

type ScoringError struct {
	ID      int64
	ItemID  int64
	Kind    ErrorKind
	Message string
	Trace   string
	Data    Document
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
