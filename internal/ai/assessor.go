// Package ai holds the optional LLM second opinion attached to score reasons.
package ai

import (
	"context"

	"github.com/spigell/job-aggregator/internal/ledger"
)

type Assessment struct {
	Fit    bool
	Score  float64
	Reason string
	Model  string
	Raw    string
}

// Document is the form stored under reasons.ai.
func (a *Assessment) Document() ledger.Document {
	return ledger.Document{
		"fit":    a.Fit,
		"score":  a.Score,
		"reason": a.Reason,
		"model":  a.Model,
	}
}

type Assessor interface {
	Assess(ctx context.Context, profile *ledger.CandidateProfile, job *ledger.JobPosting) (*Assessment, error)
}
