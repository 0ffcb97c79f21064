package ledger

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundKeepsMessage(t *testing.T) {
	err := NotFoundf("scoring_run not found: %d", 7)

	assert.EqualError(t, err, "scoring_run not found: 7")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(errors.Wrap(err, "score"), ErrNotFound))
}

func TestKindOfPrefersInnermostTag(t *testing.T) {
	err := WithKind(errors.New("disk full"), KindStorage)
	err = WithKind(errors.Wrap(err, "reconcile"), KindInternal)

	assert.Equal(t, KindStorage, KindOf(err, KindScoring))
	assert.Equal(t, KindScoring, KindOf(errors.New("plain"), KindScoring))
	assert.Nil(t, WithKind(nil, KindFetch))
}

func TestNewFailureCapturesTrace(t *testing.T) {
	err := WithKind(errors.New("source_item_id is empty"), KindValidation)

	f := NewFailure(err, KindInternal)

	assert.Equal(t, KindValidation, f.Kind)
	assert.Equal(t, "source_item_id is empty", f.Message)
	require.NotEmpty(t, f.Trace)
	assert.True(t, strings.Contains(f.Trace, "errors_test.go"), "trace should reference the call site: %s", f.Trace)

	doc := f.Document()
	assert.Equal(t, "validation", doc["error_type"])
	assert.NotContains(t, doc, "trace")
}

func TestRunStatusTransitions(t *testing.T) {
	assert.True(t, RunStarted.CanTransition(RunFinished))
	assert.True(t, RunStarted.CanTransition(RunFailed))
	assert.False(t, RunFinished.CanTransition(RunFailed))
	assert.False(t, RunFailed.CanTransition(RunStarted))
	assert.False(t, RunStarted.CanTransition(RunStarted))
}

func TestProfileSnapshot(t *testing.T) {
	label := "backend"
	p := &CandidateProfile{ID: 4, Label: &label, Skills: Strings{"Go"}}

	snap := p.Snapshot()

	assert.Equal(t, int64(4), snap["id"])
	assert.Equal(t, "backend", snap["label"])
	assert.Nil(t, snap["name"])
	assert.Equal(t, []any{"Go"}, snap["skills"])
}

func TestErrorKindValid(t *testing.T) {
	assert.True(t, KindConflict.Valid())
	assert.False(t, ErrorKind("KeyError").Valid())
}
