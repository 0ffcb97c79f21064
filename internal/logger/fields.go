package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldRunID is the key for ingestion and scoring run identifiers.
	FieldRunID = "run_id"
	// FieldSource is the key for the connector source name.
	FieldSource = "source"
	// FieldProfileID is the key for the candidate profile identifier.
	FieldProfileID = "profile_id"
	// FieldErrorType is the key for ledger error kinds.
	FieldErrorType = "error_type"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// RunFields describes a pipeline run. The source is omitted when empty.
func RunFields(runID int64, source string) []zap.Field {
	fields := []zap.Field{zap.Int64(FieldRunID, runID)}
	return append(fields, StringFields(StringField{Key: FieldSource, Value: source})...)
}

// ProfileField returns the profile id field, or a skip field for unbound runs.
func ProfileField(profileID *int64) zap.Field {
	if profileID == nil {
		return zap.Skip()
	}
	return zap.Int64(FieldProfileID, *profileID)
}
