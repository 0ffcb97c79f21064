package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// Document is a free-form structured payload: run metadata, raw source
// rows, score reasons and error context are all stored as documents.
type Document map[string]any

// Merge returns a new document holding d's keys overridden by each of others in order.
func (d Document) Merge(others ...Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// Sub returns the nested document stored under key, or nil.
func (d Document) Sub(key string) Document {
	switch v := d[key].(type) {
	case Document:
		return v
	case map[string]any:
		return Document(v)
	default:
		return nil
	}
}

// Int reads a numeric value regardless of whether it came from Go code
// or from a decoded JSON column.
func (d Document) Int(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// String reads a string value.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Encode renders the document as JSON. A nil document encodes as {}.
func (d Document) Encode() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, WithKind(errors.Wrap(err, "encode document"), KindEncoding)
	}
	return data, nil
}

// DecodeDocument parses a JSON object. Empty input yields an empty document.
func DecodeDocument(data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, nil
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, WithKind(errors.Wrap(err, "decode document"), KindEncoding)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// Value implements driver.Valuer.
func (d Document) Value() (driver.Value, error) {
	data, err := d.Encode()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (d *Document) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*d = Document{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("document: unsupported column type %T", src)
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// Strings is an ordered list of strings stored as a JSON array.
type Strings []string

// Value implements driver.Valuer.
func (s Strings) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, WithKind(errors.Wrap(err, "encode strings"), KindEncoding)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *Strings) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = Strings{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("strings: unsupported column type %T", src)
	}

	out := Strings{}
	if len(data) == 0 {
		*s = out
		return nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return WithKind(errors.Wrap(err, "decode strings"), KindEncoding)
	}
	if out == nil {
		out = Strings{}
	}
	*s = out
	return nil
}
