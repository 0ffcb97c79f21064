package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMergeDoesNotMutate(t *testing.T) {
	base := Document{"profile": Document{"selector": "x"}, "ok": 1}
	merged := base.Merge(Document{"ok": 2, "limit": 10})

	assert.Equal(t, 1, base["ok"])
	assert.NotContains(t, base, "limit")
	assert.Equal(t, 2, merged["ok"])
	assert.Equal(t, 10, merged["limit"])
	assert.Equal(t, "x", merged.Sub("profile")["selector"])
}

func TestDocumentRoundTripThroughColumn(t *testing.T) {
	doc := Document{"ok": 3, "fatal": Document{"error_type": "fetch"}}

	value, err := doc.Value()
	require.NoError(t, err)

	var scanned Document
	require.NoError(t, scanned.Scan(value))

	ok, found := scanned.Int("ok")
	require.True(t, found)
	assert.Equal(t, 3, ok)

	kind, _ := scanned.Sub("fatal").String("error_type")
	assert.Equal(t, "fetch", kind)
}

func TestDocumentScanNullAndEmpty(t *testing.T) {
	var doc Document
	require.NoError(t, doc.Scan(nil))
	assert.NotNil(t, doc)
	assert.Empty(t, doc)

	require.NoError(t, doc.Scan([]byte("")))
	assert.Empty(t, doc)

	require.Error(t, doc.Scan(42))
}

func TestDocumentEncodeRejectsNaN(t *testing.T) {
	_, err := Document{"score": math.NaN()}.Encode()
	require.Error(t, err)
}

func TestDocumentIntRejectsFractions(t *testing.T) {
	_, ok := Document{"n": 1.5}.Int("n")
	assert.False(t, ok)

	_, ok = Document{}.Int("missing")
	assert.False(t, ok)
}

func TestStringsNilEncodesAsEmptyArray(t *testing.T) {
	var s Strings
	value, err := s.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)

	var scanned Strings
	require.NoError(t, scanned.Scan(`["go","sql"]`))
	assert.Equal(t, Strings{"go", "sql"}, scanned)
}
