package text

import "strings"

// ChunkBySentence splits text at sentence boundaries and packs consecutive
// sentences into chunks of at most maxChars each. maxChars <= 0 disables
// splitting. A single sentence longer than maxChars stays whole; the decoder
// handles long sequences, chunking only bounds them.
func ChunkBySentence(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var chunks []string
	current := sentences[0]
	for _, s := range sentences[1:] {
		if len(current)+1+len(s) > maxChars {
			chunks = append(chunks, current)
			current = s
			continue
		}
		current += " " + s
	}

	return append(chunks, current)
}

// splitSentences cuts text after each terminator (., !, ?), keeping the
// terminator with its sentence and dropping empty segments.
func splitSentences(text string) []string {
	var out []string
	start := 0

	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i, r := range text {
		switch r {
		case '.', '!', '?':
			flush(i + 1)
		}
	}
	flush(len(text))

	return out
}
