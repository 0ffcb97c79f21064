package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/ledger"
	"github.com/spigell/job-aggregator/internal/logger"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Assessor asks Gemini for a fit verdict on one profile and one posting.
type Assessor struct {
	generator contentGenerator
	minScore  float64
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Assessor = (*Assessor)(nil)

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

func NewAssessor(generator contentGenerator, logger *zap.Logger, minScore float64, maxLogLength int) *Assessor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Assessor{
		generator: generator,
		minScore:  minScore,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (a *Assessor) Assess(ctx context.Context, profile *ledger.CandidateProfile, job *ledger.JobPosting) (*ai.Assessment, error) {
	if profile == nil {
		return nil, errors.New("candidate profile is required")
	}
	if job == nil {
		return nil, errors.New("job posting is required")
	}

	profileJSON, err := json.MarshalIndent(profile.Snapshot(), "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal profile payload")
	}

	jobJSON, err := json.MarshalIndent(jobPayload(job), "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal job payload")
	}

	prompt := buildPrompt(string(profileJSON), string(jobJSON))

	a.logger.Debug("gemini generate content request",
		zap.Int64("job_id", job.ID),
		zap.Int64("profile_id", profile.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("gemini generate content response",
		zap.Int64("job_id", job.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, a.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	if a.minScore > 0 && assessment.Score < a.minScore {
		a.logger.Debug("set fit to false by score threshold",
			zap.Int64("job_id", job.ID),
			zap.Float64("score", assessment.Score),
			zap.Float64("threshold", a.minScore),
		)
		assessment.Fit = false
	}

	assessment.Model = a.generator.Model()
	assessment.Raw = raw
	return assessment, nil
}

func jobPayload(job *ledger.JobPosting) map[string]any {
	payload := map[string]any{
		"id":             job.ID,
		"source":         job.Source,
		"source_item_id": job.SourceItemID,
		"title":          job.Title,
		"company":        job.Company,
		"url":            job.URL,
	}
	if job.PublishedAt != nil {
		payload["published_at"] = job.PublishedAt.UTC()
	}
	if len(job.Raw) > 0 {
		payload["details"] = job.Raw
	}
	return payload
}

func buildPrompt(profileJSON, jobJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Profile:\n{{PROFILE_JSON}}\n\nJob:\n{{JOB_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{PROFILE_JSON}}", profileJSON)
	prompt = strings.ReplaceAll(prompt, "{{JOB_JSON}}", jobJSON)
	return prompt
}

func parseResponse(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, errors.Wrap(err, "parse gemini response")
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}

	return &ai.Assessment{
		Fit:    coerceBool(data["fit"]),
		Score:  score,
		Reason: coerceString(data["reason"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
