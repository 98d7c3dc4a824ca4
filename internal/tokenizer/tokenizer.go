// Package tokenizer encodes text into the token IDs the embed_tokens graph
// expects, using the HuggingFace tokenizer.json shipped alongside the models.
package tokenizer

import (
	"errors"
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// EndOfTextToken is appended twice after the text tokens. The embedder
// treats the final two positions as speech-token placeholders.
const EndOfTextToken int64 = 50256

// Tokenizer encodes text into model token IDs.
type Tokenizer interface {
	// Encode tokenizes text. The returned sequence ends with two
	// EndOfTextToken sentinels.
	Encode(text string) ([]int64, error)
}

// HFTokenizer wraps a HuggingFace BPE tokenizer loaded from tokenizer.json.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

// NewFromFile loads tokenizer.json from path.
func NewFromFile(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %q: %w", path, err)
	}

	return &HFTokenizer{tk: tk}, nil
}

// Encode tokenizes text and appends the two end-of-text sentinels.
func (t *HFTokenizer) Encode(text string) ([]int64, error) {
	if text == "" {
		return nil, errors.New("empty input text")
	}

	enc, err := t.tk.EncodeSingle(text)
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}

	return AppendSentinels(enc.Ids), nil
}

// AppendSentinels converts raw IDs and appends the two end-of-text tokens.
func AppendSentinels(ids []int) []int64 {
	out := make([]int64, 0, len(ids)+2)
	for _, id := range ids {
		out = append(out, int64(id))
	}
	out = append(out, EndOfTextToken, EndOfTextToken)

	return out
}
