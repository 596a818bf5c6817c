package transcript

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"trailing_sentence_kept", "Hello world. How are you", []string{"Hello world.", "How are you"}},
		{"no_punctuation", "No punctuation here", []string{"No punctuation here"}},
		{"terminal_mark_not_duplicated", "One. Two.", []string{"One.", "Two."}},
		{"mixed_marks_in_order", "Really? Yes. Great!", []string{"Really?", "Yes.", "Great!"}},
		{"consecutive_marks_no_empty", "Wait... what?!", []string{"Wait...", "what?!"}},
		{"surrounding_whitespace_trimmed", "  padded.  ", []string{"padded."}},
		{"collapses_inner_whitespace", "a.   b   c", []string{"a.", "b c"}},
		{"mark_inside_word", "v1.2 is out", []string{"v1.2", "is out"}},
		{"korean", "안녕하세요. 반갑습니다", []string{"안녕하세요.", "반갑습니다"}},
		{"empty", "", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text, DefaultPunctuation)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitSentencesIdempotent(t *testing.T) {
	inputs := []string{
		"Hello world. How are you",
		"Is it? It is! Fine. ok",
		"no marks at all",
		"a.b.c d?e f",
	}
	for _, in := range inputs {
		once := SplitSentences(in, DefaultPunctuation)
		var twice []string
		for _, s := range once {
			twice = append(twice, SplitSentences(s, DefaultPunctuation)...)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("split of %q not idempotent: %q then %q", in, once, twice)
		}
	}
}

func TestSplitSentencesCustomMarks(t *testing.T) {
	got := SplitSentences("a; b; c", []string{";"})
	want := []string{"a;", "b;", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}
