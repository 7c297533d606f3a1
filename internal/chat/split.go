package chat

import "unicode/utf8"

// Split cuts text into consecutive chunks of at most maxChars characters (runes).
// Boundaries are fixed-size; words may be cut. Bytes are preserved exactly, so
// joining the chunks gives back text.
func Split(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{text}
	}
	var out []string
	start, n := 0, 0
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
		n++
		if n == maxChars {
			out = append(out, text[start:i])
			start, n = i, 0
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
