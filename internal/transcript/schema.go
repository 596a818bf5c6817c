package transcript

import (
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
)

// Canonical attribute names a response field can be mapped onto.
const (
	FieldStartTime   = "start_time"
	FieldEndTime     = "end_time"
	FieldText        = "text"
	FieldEditedText  = "edited_text"
	FieldConfidence  = "confidence"
	FieldSpeaker     = "speaker"
	FieldDiarization = "diarization"
	FieldWords       = "words"
)

// ErrSchemaMismatch is the sentinel wrapped by every SchemaError.
var ErrSchemaMismatch = errors.New("stt response schema mismatch")

// SchemaError reports a response that does not fit a schema strategy.
type SchemaError struct {
	Version string
	Reason  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s (schema %s): %s", ErrSchemaMismatch, e.Version, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

func schemaErrorf(version, format string, args ...any) *SchemaError {
	return &SchemaError{Version: version, Reason: fmt.Sprintf(format, args...)}
}

// FieldNameMap maps response field names to canonical names for one run.
// Fields missing from Names pass through under their original name.
type FieldNameMap struct {
	Version    string
	Names      map[string]string
	Unmapped   []string // fields whose kind matched no rule
	Collisions []string // canonical names claimed by more than one field
}

// Canonical returns the canonical name for a response field.
func (m *FieldNameMap) Canonical(field string) string {
	if name, ok := m.Names[field]; ok {
		return name
	}
	return field
}

// Schema is a strategy that derives the field map for a run from the first
// raw segment.
type Schema interface {
	Name() string
	Resolve(sample RawSegment) (*FieldNameMap, error)
}

// SchemaByName returns the strategy for an STT_SCHEMA setting.
func SchemaByName(name string) (Schema, error) {
	switch name {
	case "", "auto":
		return Auto{}, nil
	case "strict":
		return Explicit{}, nil
	case "infer":
		return Inferred{}, nil
	}
	return nil, fmt.Errorf("unknown stt schema %q: want auto, strict or infer", name)
}

// ClovaV1 is the documented segment layout of the Clova Speech recognizer.
var ClovaV1 = map[string]string{
	"start":       FieldStartTime,
	"end":         FieldEndTime,
	"text":        FieldText,
	"textEdited":  FieldEditedText,
	"confidence":  FieldConfidence,
	"speaker":     FieldSpeaker,
	"diarization": FieldDiarization,
	"words":       FieldWords,
}

// Explicit maps fields by their documented names and rejects any sample that
// deviates from the documented kinds.
type Explicit struct{}

func (Explicit) Name() string { return "clova-v1" }

func (e Explicit) Resolve(sample RawSegment) (*FieldNameMap, error) {
	want := map[string][]Kind{
		"start":      {KindInteger},
		"end":        {KindInteger},
		"text":       {KindString},
		"textEdited": {KindString},
		"confidence": {KindFloat, KindInteger},
		"speaker":    {KindObject},
	}
	for name, kinds := range want {
		f, ok := sample.Field(name)
		if !ok {
			return nil, schemaErrorf(e.Name(), "missing field %q", name)
		}
		if !kindIn(f.Kind, kinds) {
			return nil, schemaErrorf(e.Name(), "field %q is %s", name, f.Kind)
		}
	}

	m := &FieldNameMap{Version: e.Name(), Names: make(map[string]string, len(ClovaV1))}
	for _, f := range sample.Fields {
		if canonical, ok := ClovaV1[f.Name]; ok {
			m.Names[f.Name] = canonical
		} else {
			m.Unmapped = append(m.Unmapped, f.Name)
		}
	}
	return m, nil
}

func kindIn(k Kind, kinds []Kind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// Inferred maps fields by the runtime kind of their values in the sample.
// The sample must carry exactly two integer fields; the larger becomes the
// end time.
type Inferred struct{}

func (Inferred) Name() string { return "inferred" }

func (i Inferred) Resolve(sample RawSegment) (*FieldNameMap, error) {
	m := &FieldNameMap{Version: i.Name(), Names: make(map[string]string)}
	claimed := make(map[string]string)
	assign := func(field, canonical string) {
		if prev, ok := claimed[canonical]; ok && prev != field {
			m.Collisions = append(m.Collisions, canonical)
		}
		claimed[canonical] = field
		m.Names[field] = canonical
	}

	type stamp struct {
		field string
		value int64
	}
	var stamps []stamp

	for _, f := range sample.Fields {
		switch f.Kind {
		case KindInteger:
			v, err := jsonparser.ParseInt(f.Raw)
			if err != nil {
				return nil, schemaErrorf(i.Name(), "field %q: %v", f.Name, err)
			}
			stamps = append(stamps, stamp{field: f.Name, value: v})
		case KindString:
			if strings.Contains(strings.ToLower(f.Name), "edited") {
				assign(f.Name, FieldEditedText)
			} else {
				assign(f.Name, FieldText)
			}
		case KindFloat:
			assign(f.Name, FieldConfidence)
		case KindObject:
			if _, _, _, err := jsonparser.Get(f.Raw, "name"); err == nil {
				assign(f.Name, FieldSpeaker)
			} else {
				assign(f.Name, FieldDiarization)
			}
		case KindArray:
			assign(f.Name, FieldWords)
		default:
			m.Unmapped = append(m.Unmapped, f.Name)
		}
	}

	if len(stamps) != 2 {
		return nil, schemaErrorf(i.Name(), "found %d integer fields, want exactly 2 timestamps", len(stamps))
	}
	a, b := stamps[0], stamps[1]
	switch {
	case a.value > b.value:
		assign(a.field, FieldEndTime)
		assign(b.field, FieldStartTime)
	case a.value < b.value:
		assign(a.field, FieldStartTime)
		assign(b.field, FieldEndTime)
	default:
		return nil, schemaErrorf(i.Name(), "timestamp fields %q and %q are equal (%d), cannot tell start from end",
			a.field, b.field, a.value)
	}
	return m, nil
}

// Auto prefers the documented layout and falls back to inference when the
// sample deviates from it.
type Auto struct{}

func (Auto) Name() string { return "auto" }

func (Auto) Resolve(sample RawSegment) (*FieldNameMap, error) {
	m, err := Explicit{}.Resolve(sample)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrSchemaMismatch) {
		return nil, err
	}
	return Inferred{}.Resolve(sample)
}
