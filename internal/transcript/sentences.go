package transcript

import "strings"

// DefaultPunctuation is the ordered set of sentence-closing marks. Each mark
// gets its own pass over the output of the previous one.
var DefaultPunctuation = []string{".", "?", "!"}

// SplitSentences splits text into sentences, one pass per mark in order.
func SplitSentences(text string, marks []string) []string {
	out := []string{text}
	for _, mark := range marks {
		out = splitOn(out, mark)
	}
	return out
}

// splitOn closes a sentence after every whitespace-delimited word that
// contains mark. Text after the last closing word becomes a trailing
// sentence. Inputs without the mark pass through trimmed.
func splitOn(texts []string, mark string) []string {
	out := make([]string, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if !strings.Contains(text, mark) {
			out = append(out, text)
			continue
		}

		var (
			sentences []string
			buf       strings.Builder
		)
		for _, word := range strings.Fields(text) {
			buf.WriteString(word)
			buf.WriteByte(' ')
			if strings.Contains(word, mark) {
				sentences = append(sentences, strings.TrimSpace(buf.String()))
				buf.Reset()
			}
		}
		if tail := strings.TrimSpace(buf.String()); tail != "" && (len(sentences) == 0 || tail != sentences[len(sentences)-1]) {
			sentences = append(sentences, tail)
		}
		out = append(out, sentences...)
	}
	return out
}
