// Package chatterbox implements the Chatterbox Turbo inference pipeline:
// speech encoder, token embedder, autoregressive language model and
// conditional decoder, orchestrated over the ONNX tensor runtime, plus the
// two-tier voice-conditionals cache that fronts the speech encoder.
package chatterbox

// Model constants. These must match the trained Chatterbox Turbo weights.
const (
	// SampleRate is the output audio sample rate.
	SampleRate = 24000
	// SpeechTokenizerSampleRate is the speech tokenizer's reference rate.
	SpeechTokenizerSampleRate = 16000

	// StartSpeechToken seeds the autoregressive loop.
	StartSpeechToken int64 = 6561
	// StopSpeechToken terminates generation when sampled.
	StopSpeechToken int64 = 6562
	// SilenceToken pads the decoder input; three are appended per utterance.
	SilenceToken int64 = 4299

	// EndOfTextToken is the sentinel the tokenizer appends twice after the
	// text tokens.
	EndOfTextToken int64 = 50256

	numKVHeads = 16
	headDim    = 64

	// minReferenceSeconds is the minimum reference clip duration the speech
	// encoder accepts.
	minReferenceSeconds = 5.0

	silencePadTokens = 3
)

// Logical model names within the bundle.
const (
	ModelSpeechEncoder      = "speech_encoder"
	ModelEmbedTokens        = "embed_tokens"
	ModelLanguageModel      = "language_model"
	ModelConditionalDecoder = "conditional_decoder"
)

// ModelNames lists the four graphs of a complete bundle.
var ModelNames = []string{
	ModelSpeechEncoder,
	ModelEmbedTokens,
	ModelLanguageModel,
	ModelConditionalDecoder,
}
