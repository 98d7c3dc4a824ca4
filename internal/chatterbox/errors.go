package chatterbox

import "errors"

// Configuration errors.
var (
	ErrQuantVariantUnsupported = errors.New("unsupported quant variant")
	ErrModelsNotReady          = errors.New("models not loaded")
	ErrModelDirNotFound        = errors.New("ONNX models directory not found")
)

// Input errors.
var (
	ErrReferenceTooShort   = errors.New("reference audio shorter than 5 seconds")
	ErrEmptyTokens         = errors.New("no input tokens")
	ErrConditionalsInvalid = errors.New("voice conditionals not prepared")
)

// Runtime errors. Each stage failure wraps the upstream runtime message.
var (
	ErrEncoderOutputMismatch = errors.New("speech encoder returned unexpected outputs")
	ErrEmbedding             = errors.New("token embedding failed")
	ErrLanguageModel         = errors.New("language model step failed")
	ErrDecoder               = errors.New("conditional decoder failed")
)

// Cache errors. ErrCacheMiss is informational, not fatal.
var (
	ErrCacheRead   = errors.New("cache read failed")
	ErrCacheWrite  = errors.New("cache write failed")
	ErrCacheFormat = errors.New("cache file format mismatch")
	ErrCacheMiss   = errors.New("cache miss")
)
