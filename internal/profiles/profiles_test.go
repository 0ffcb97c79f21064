package profiles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/job-aggregator/internal/ledger"
)

func TestParseDocuments(t *testing.T) {
	input := `
label: go-backend
name: " Jane Doe "
role: Backend Engineer
skills: [Go, PostgreSQL, " Kafka "]
data:
  salary: 100000
  remote: true
---
label: python
skills:
  - Python
`
	got, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "go-backend", *first.Label)
	assert.Equal(t, "Jane Doe", *first.Name)
	assert.Nil(t, first.Location)
	assert.Equal(t, ledger.Strings{"Go", "PostgreSQL", "Kafka"}, first.Skills)
	assert.Equal(t, true, first.Data["remote"])

	assert.Equal(t, "python", *got[1].Label)
	assert.Equal(t, ledger.Document{}, got[1].Data)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]struct {
		input string
		kind  ledger.ErrorKind
	}{
		"missing label":  {input: "skills: [go]", kind: ledger.KindValidation},
		"no skills":      {input: "label: x", kind: ledger.KindValidation},
		"blank skill":    {input: "label: x\nskills: [go, ' ']", kind: ledger.KindValidation},
		"unknown field":  {input: "label: x\nskills: [go]\nsalary: 1", kind: ledger.KindEncoding},
		"empty document": {input: "", kind: ledger.KindValidation},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.kind, ledger.KindOf(err, ledger.KindInternal))
		})
	}
}
