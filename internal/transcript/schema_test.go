package transcript

import (
	"errors"
	"testing"
)

const clovaResponse = `{
	"result": "COMPLETED",
	"segments": [
		{"start": 0, "end": 1200, "text": "hello there", "confidence": 0.93,
		 "diarization": {"label": "1"}, "speaker": {"label": "1", "name": "A", "edited": false},
		 "words": [[0, 500, "hello"], [600, 1200, "there"]], "textEdited": "Hello there."},
		{"start": 1200, "end": 3400, "text": "how are you fine", "confidence": 0.88,
		 "diarization": {"label": "2"}, "speaker": {"label": "2", "name": "B", "edited": false},
		 "words": [], "textEdited": "How are you? Fine"}
	]
}`

func sample(t *testing.T, body string) RawSegment {
	t.Helper()
	segs, err := ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(segs) == 0 {
		t.Fatal("no segments")
	}
	return segs[0]
}

func TestParseResponse(t *testing.T) {
	t.Run("kinds_in_order", func(t *testing.T) {
		seg := sample(t, clovaResponse)
		want := []struct {
			name string
			kind Kind
		}{
			{"start", KindInteger},
			{"end", KindInteger},
			{"text", KindString},
			{"confidence", KindFloat},
			{"diarization", KindObject},
			{"speaker", KindObject},
			{"words", KindArray},
			{"textEdited", KindString},
		}
		if len(seg.Fields) != len(want) {
			t.Fatalf("got %d fields, want %d", len(seg.Fields), len(want))
		}
		for i, w := range want {
			if seg.Fields[i].Name != w.name || seg.Fields[i].Kind != w.kind {
				t.Errorf("field %d = %s/%s, want %s/%s", i, seg.Fields[i].Name, seg.Fields[i].Kind, w.name, w.kind)
			}
		}
	})

	t.Run("exponent_is_float", func(t *testing.T) {
		seg := sample(t, `{"segments":[{"c": 1e-3, "n": 12}]}`)
		if seg.Fields[0].Kind != KindFloat {
			t.Errorf("1e-3 kind = %s, want float", seg.Fields[0].Kind)
		}
		if seg.Fields[1].Kind != KindInteger {
			t.Errorf("12 kind = %s, want integer", seg.Fields[1].Kind)
		}
	})

	t.Run("missing_segments", func(t *testing.T) {
		if _, err := ParseResponse([]byte(`{"result":"FAILED"}`)); err == nil {
			t.Error("expected error for missing segments")
		}
	})

	t.Run("segments_not_array", func(t *testing.T) {
		if _, err := ParseResponse([]byte(`{"segments": {}}`)); err == nil {
			t.Error("expected error for object segments")
		}
	})

	t.Run("segment_not_object", func(t *testing.T) {
		if _, err := ParseResponse([]byte(`{"segments": [1, 2]}`)); err == nil {
			t.Error("expected error for scalar segment")
		}
	})
}

func TestExplicitResolve(t *testing.T) {
	t.Run("documented_layout", func(t *testing.T) {
		m, err := Explicit{}.Resolve(sample(t, clovaResponse))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if m.Version != "clova-v1" {
			t.Errorf("Version = %q, want clova-v1", m.Version)
		}
		for field, want := range ClovaV1 {
			if got := m.Canonical(field); got != want {
				t.Errorf("Canonical(%q) = %q, want %q", field, got, want)
			}
		}
	})

	t.Run("missing_field_is_schema_error", func(t *testing.T) {
		_, err := Explicit{}.Resolve(sample(t, `{"segments":[{"begin":0,"finish":10,"text":"a","textEdited":"a","confidence":0.5,"speaker":{"label":"1","name":"A"}}]}`))
		var se *SchemaError
		if !errors.As(err, &se) {
			t.Fatalf("err = %v, want *SchemaError", err)
		}
		if se.Version != "clova-v1" {
			t.Errorf("Version = %q, want clova-v1", se.Version)
		}
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Error("SchemaError does not wrap ErrSchemaMismatch")
		}
	})

	t.Run("wrong_kind_is_schema_error", func(t *testing.T) {
		_, err := Explicit{}.Resolve(sample(t, `{"segments":[{"start":"0","end":10,"text":"a","textEdited":"a","confidence":0.5,"speaker":{"label":"1","name":"A"}}]}`))
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Errorf("err = %v, want schema mismatch", err)
		}
	})
}

func TestInferredResolve(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "larger_integer_is_end",
			body: `{"segments":[{"b": 900, "a": 100}]}`,
			want: map[string]string{"a": FieldStartTime, "b": FieldEndTime},
		},
		{
			name: "smaller_first",
			body: `{"segments":[{"from": 5, "to": 7}]}`,
			want: map[string]string{"from": FieldStartTime, "to": FieldEndTime},
		},
		{
			name: "kinds_map_by_rule",
			body: `{"segments":[{"s": 1, "e": 2, "utterance": "x", "UtteranceEdited": "y",
				"score": 0.5, "who": {"name": "A", "label": "1"}, "dia": {"label": "1"}, "tokens": [], "ok": true}]}`,
			want: map[string]string{
				"utterance":       FieldText,
				"UtteranceEdited": FieldEditedText,
				"score":           FieldConfidence,
				"who":             FieldSpeaker,
				"dia":             FieldDiarization,
				"tokens":          FieldWords,
				"ok":              "ok",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Inferred{}.Resolve(sample(t, tt.body))
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			for field, want := range tt.want {
				if got := m.Canonical(field); got != want {
					t.Errorf("Canonical(%q) = %q, want %q", field, got, want)
				}
			}
		})
	}

	t.Run("unmapped_kinds_reported", func(t *testing.T) {
		m, err := Inferred{}.Resolve(sample(t, `{"segments":[{"s": 1, "e": 2, "flag": true, "gap": null}]}`))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(m.Unmapped) != 2 {
			t.Errorf("Unmapped = %v, want [flag gap]", m.Unmapped)
		}
	})

	t.Run("text_collision_last_wins", func(t *testing.T) {
		m, err := Inferred{}.Resolve(sample(t, `{"segments":[{"s": 1, "e": 2, "t1": "a", "t2": "b"}]}`))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(m.Collisions) != 1 || m.Collisions[0] != FieldText {
			t.Errorf("Collisions = %v, want [text]", m.Collisions)
		}
	})

	errCases := []struct {
		name string
		body string
	}{
		{"one_integer", `{"segments":[{"s": 1, "text": "a"}]}`},
		{"three_integers", `{"segments":[{"a": 1, "b": 2, "c": 3}]}`},
		{"tied_timestamps", `{"segments":[{"a": 5, "b": 5}]}`},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Inferred{}.Resolve(sample(t, tt.body))
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Errorf("err = %v, want schema mismatch", err)
			}
		})
	}
}

func TestAutoResolve(t *testing.T) {
	t.Run("prefers_documented_layout", func(t *testing.T) {
		m, err := Auto{}.Resolve(sample(t, clovaResponse))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if m.Version != "clova-v1" {
			t.Errorf("Version = %q, want clova-v1", m.Version)
		}
	})

	t.Run("falls_back_to_inference", func(t *testing.T) {
		m, err := Auto{}.Resolve(sample(t, `{"segments":[{"begin": 10, "finish": 20, "txt": "a", "txtEdited": "a"}]}`))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if m.Version != "inferred" {
			t.Errorf("Version = %q, want inferred", m.Version)
		}
		if m.Canonical("finish") != FieldEndTime {
			t.Errorf("Canonical(finish) = %q, want end_time", m.Canonical("finish"))
		}
	})
}

func TestSchemaByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "auto", false},
		{"auto", "auto", false},
		{"strict", "clova-v1", false},
		{"infer", "inferred", false},
		{"guess", "", true},
	}
	for _, tt := range tests {
		s, err := SchemaByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SchemaByName(%q) expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SchemaByName(%q): %v", tt.name, err)
		}
		if s.Name() != tt.want {
			t.Errorf("SchemaByName(%q).Name() = %q, want %q", tt.name, s.Name(), tt.want)
		}
	}
}
