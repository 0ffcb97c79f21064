// Package profiles reads candidate profiles from YAML files.
package profiles

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/spigell/job-aggregator/internal/ledger"
)

// File is one YAML document. A file may hold several documents separated by ---.
type File struct {
	Label    string         `yaml:"label" validate:"required,max=128"`
	Name     string         `yaml:"name"`
	Location string         `yaml:"location"`
	Role     string         `yaml:"role"`
	Skills   []string       `yaml:"skills" validate:"min=1,dive,required"`
	Data     map[string]any `yaml:"data"`
}

var validate = validator.New()

// Parse decodes and validates every document in r.
func Parse(r io.Reader) ([]*ledger.CandidateProfile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out []*ledger.CandidateProfile
	for i := 0; ; i++ {
		var f File
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ledger.WithKind(errors.Wrapf(err, "decode profile document %d", i+1), ledger.KindEncoding)
		}

		f.trim()
		if err := validate.Struct(&f); err != nil {
			return nil, ledger.WithKind(errors.Wrapf(err, "invalid profile document %d", i+1), ledger.KindValidation)
		}
		out = append(out, f.profile())
	}

	if len(out) == 0 {
		return nil, ledger.WithKind(errors.New("no profiles found"), ledger.KindValidation)
	}
	return out, nil
}

func (f *File) trim() {
	f.Label = strings.TrimSpace(f.Label)
	f.Name = strings.TrimSpace(f.Name)
	f.Location = strings.TrimSpace(f.Location)
	f.Role = strings.TrimSpace(f.Role)
	for i, s := range f.Skills {
		f.Skills[i] = strings.TrimSpace(s)
	}
}

func (f *File) profile() *ledger.CandidateProfile {
	label := f.Label
	p := &ledger.CandidateProfile{
		Label:    &label,
		Name:     optional(f.Name),
		Location: optional(f.Location),
		Role:     optional(f.Role),
		Skills:   ledger.Strings(f.Skills),
		Data:     ledger.Document(f.Data),
	}
	if p.Data == nil {
		p.Data = ledger.Document{}
	}
	return p
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
