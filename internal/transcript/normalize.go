package transcript

import (
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"
)

// CanonicalSegment is one sentence-level transcript unit.
type CanonicalSegment struct {
	RecordingID  string  `json:"recording_id"`
	Index        int     `json:"index"`
	StartTime    int64   `json:"start_time"` // ms
	EndTime      int64   `json:"end_time"`   // ms
	Text         string  `json:"text"`
	EditedText   string  `json:"edited_text"`
	Confidence   float64 `json:"confidence"`
	SpeakerLabel string  `json:"speaker_label"`
}

// Normalizer maps raw STT segments onto CanonicalSegments and splits the
// edited text into sentences.
type Normalizer struct {
	schema Schema
	marks  []string
	log    zerolog.Logger
}

// NewNormalizer creates a Normalizer. A nil schema selects Auto and empty
// marks select DefaultPunctuation.
func NewNormalizer(schema Schema, marks []string, log zerolog.Logger) *Normalizer {
	if schema == nil {
		schema = Auto{}
	}
	if len(marks) == 0 {
		marks = DefaultPunctuation
	}
	return &Normalizer{
		schema: schema,
		marks:  marks,
		log:    log.With().Str("component", "normalizer").Logger(),
	}
}

// Schema returns the strategy the normalizer resolves field names with.
func (n *Normalizer) Schema() Schema { return n.schema }

// Normalize resolves the field map from the first raw segment, applies it to
// every segment, explodes each one per sentence of its edited text and
// numbers the result 1..N in recording order.
func (n *Normalizer) Normalize(recordingID string, raws []RawSegment) ([]CanonicalSegment, *FieldNameMap, error) {
	if len(raws) == 0 {
		return nil, nil, &SchemaError{Version: n.schema.Name(), Reason: "response contains no segments"}
	}

	fields, err := n.schema.Resolve(raws[0])
	if err != nil {
		return nil, nil, err
	}
	log := n.log.With().Str("recording_id", recordingID).Str("schema", fields.Version).Logger()
	for _, name := range fields.Unmapped {
		log.Warn().Str("field", name).Msg("stt field left unmapped")
	}
	for _, name := range fields.Collisions {
		log.Warn().Str("canonical", name).Msg("several stt fields map to the same attribute, keeping the last")
	}

	var out []CanonicalSegment
	for i, raw := range raws {
		seg, err := canonicalize(raw, fields)
		if err != nil {
			return nil, nil, &SchemaError{Version: fields.Version, Reason: fmt.Sprintf("segment %d: %v", i, err)}
		}
		seg.RecordingID = recordingID
		for _, sentence := range SplitSentences(seg.EditedText, n.marks) {
			s := seg
			s.EditedText = sentence
			out = append(out, s)
		}
	}
	for i := range out {
		out[i].Index = i + 1
	}

	log.Debug().Int("raw_segments", len(raws)).Int("segments", len(out)).Msg("segments normalized")
	return out, fields, nil
}

func canonicalize(raw RawSegment, fields *FieldNameMap) (CanonicalSegment, error) {
	var (
		seg  CanonicalSegment
		seen = make(map[string]bool, 6)
		err  error
	)
	for _, f := range raw.Fields {
		name := fields.Canonical(f.Name)
		switch name {
		case FieldStartTime:
			seg.StartTime, err = parseInt(f)
		case FieldEndTime:
			seg.EndTime, err = parseInt(f)
		case FieldText:
			seg.Text, err = parseString(f)
		case FieldEditedText:
			seg.EditedText, err = parseString(f)
		case FieldConfidence:
			seg.Confidence, err = parseFloat(f)
		case FieldSpeaker:
			seg.SpeakerLabel, err = speakerLabel(f)
		default:
			continue
		}
		if err != nil {
			return seg, err
		}
		seen[name] = true
	}

	for _, required := range []string{FieldStartTime, FieldEndTime, FieldText, FieldEditedText, FieldConfidence, FieldSpeaker} {
		if !seen[required] {
			return seg, fmt.Errorf("no field maps to %s", required)
		}
	}
	if seg.StartTime > seg.EndTime {
		return seg, fmt.Errorf("start %d is after end %d", seg.StartTime, seg.EndTime)
	}
	return seg, nil
}

func parseInt(f Field) (int64, error) {
	if f.Kind != KindInteger {
		return 0, fmt.Errorf("field %q is %s, want integer", f.Name, f.Kind)
	}
	return jsonparser.ParseInt(f.Raw)
}

func parseFloat(f Field) (float64, error) {
	if f.Kind != KindFloat && f.Kind != KindInteger {
		return 0, fmt.Errorf("field %q is %s, want number", f.Name, f.Kind)
	}
	return jsonparser.ParseFloat(f.Raw)
}

func parseString(f Field) (string, error) {
	if f.Kind != KindString {
		return "", fmt.Errorf("field %q is %s, want string", f.Name, f.Kind)
	}
	return jsonparser.ParseString(f.Raw)
}

func speakerLabel(f Field) (string, error) {
	if f.Kind != KindObject {
		return "", fmt.Errorf("field %q is %s, want object", f.Name, f.Kind)
	}
	value, typ, _, err := jsonparser.Get(f.Raw, "label")
	if err != nil {
		return "", fmt.Errorf("field %q has no label", f.Name)
	}
	if typ == jsonparser.String {
		return jsonparser.ParseString(value)
	}
	return string(value), nil
}
