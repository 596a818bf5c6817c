package transcript

import (
	"bytes"
	"fmt"

	"github.com/buger/jsonparser"
)

// Kind is the runtime value kind of a raw response field.
type Kind int

const (
	KindOther Kind = iota
	KindInteger
	KindFloat
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "other"
	}
}

// Field is one field of a raw STT segment, in response order.
type Field struct {
	Name string
	Kind Kind
	Raw  []byte // string values are unquoted but still escaped
}

// RawSegment is one utterance as returned by the STT service. Field order
// follows the response document.
type RawSegment struct {
	Fields []Field
}

// Field returns the named field.
func (s RawSegment) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ParseResponse extracts the ordered segments array from an STT response body.
func ParseResponse(body []byte) ([]RawSegment, error) {
	arr, typ, _, err := jsonparser.Get(body, "segments")
	if err != nil {
		return nil, fmt.Errorf("response has no segments array: %w", err)
	}
	if typ != jsonparser.Array {
		return nil, fmt.Errorf("segments is %s, want array", typ)
	}

	var (
		segments []RawSegment
		scanErr  error
	)
	_, err = jsonparser.ArrayEach(arr, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if scanErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			scanErr = fmt.Errorf("segment %d is %s, want object", len(segments), dataType)
			return
		}
		seg, err := parseSegment(value)
		if err != nil {
			scanErr = fmt.Errorf("segment %d: %w", len(segments), err)
			return
		}
		segments = append(segments, seg)
	})
	if err != nil {
		return nil, fmt.Errorf("scan segments: %w", err)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return segments, nil
}

func parseSegment(obj []byte) (RawSegment, error) {
	var seg RawSegment
	err := jsonparser.ObjectEach(obj, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return fmt.Errorf("field name %q: %w", key, err)
		}
		seg.Fields = append(seg.Fields, Field{
			Name: name,
			Kind: kindOf(value, dataType),
			Raw:  value,
		})
		return nil
	})
	return seg, err
}

// kindOf classifies a JSON value the way a dynamic decoder would: numbers
// without a fraction or exponent are integers.
func kindOf(value []byte, dataType jsonparser.ValueType) Kind {
	switch dataType {
	case jsonparser.Number:
		if bytes.ContainsAny(value, ".eE") {
			return KindFloat
		}
		return KindInteger
	case jsonparser.String:
		return KindString
	case jsonparser.Object:
		return KindObject
	case jsonparser.Array:
		return KindArray
	default:
		return KindOther
	}
}
