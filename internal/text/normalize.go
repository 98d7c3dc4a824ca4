// Package text prepares raw input text for tokenization.
package text

import (
	"strings"
	"unicode"
)

// fallbackText is spoken when the caller provides nothing to say.
const fallbackText = "You need to add some text for me to talk."

var replacer = strings.NewReplacer(
	"…", ", ", // ellipsis
	":", ",",
	"—", "-", // em dash
	"–", "-", // en dash
	" ,", ",",
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"‘", "'", // left single quote
	"’", "'", // right single quote
)

// Normalize cleans text the way the model's training pipeline did:
// capitalize the first letter, replace uncommon punctuation with common
// equivalents, trim trailing whitespace and make sure the utterance ends in
// punctuation.
func Normalize(input string) string {
	if input == "" {
		return fallbackText
	}

	runes := []rune(input)
	if unicode.IsLower(runes[0]) {
		runes[0] = unicode.ToUpper(runes[0])
	}

	out := replacer.Replace(string(runes))
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	if out == "" {
		return fallbackText
	}

	switch out[len(out)-1] {
	case '.', '!', '?', '-', ',':
	default:
		out += "."
	}

	return out
}
