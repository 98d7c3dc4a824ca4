package chatterbox

import (
	"fmt"
	"strings"

	"github.com/langfod/chatterbox-onnx/internal/onnx"
)

// QuantVariant selects among the pre-quantized weight files published for the
// model. The variant is fixed at engine construction; it determines the model
// file name suffix and the KV-cache element type.
type QuantVariant string

const (
	QuantFP32  QuantVariant = "fp32"
	QuantQ8    QuantVariant = "q8"
	QuantQ4    QuantVariant = "q4"
	QuantQ4F16 QuantVariant = "q4f16"
)

// ParseQuantVariant validates a variant string from config or flags.
func ParseQuantVariant(raw string) (QuantVariant, error) {
	switch v := QuantVariant(strings.ToLower(strings.TrimSpace(raw))); v {
	case QuantFP32, QuantQ8, QuantQ4, QuantQ4F16:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q (expected fp32|q8|q4|q4f16)", ErrQuantVariantUnsupported, raw)
	}
}

// FileSuffix returns the filename suffix the variant's ONNX files carry.
func (q QuantVariant) FileSuffix() string {
	switch q {
	case QuantQ8:
		return "_quantized"
	case QuantQ4:
		return "_q4"
	case QuantQ4F16:
		return "_q4f16"
	default:
		return ""
	}
}

// KVCacheDType returns the element type of the language model's KV-cache
// tensors. Only q4f16 runs the cache in half precision; activations stay fp32
// for every variant.
func (q QuantVariant) KVCacheDType() onnx.DType {
	if q == QuantQ4F16 {
		return onnx.DTypeFloat16
	}
	return onnx.DTypeFloat32
}

// ModelFilename returns the on-disk filename for one of the four graphs.
func (q QuantVariant) ModelFilename(name string) string {
	return name + q.FileSuffix() + ".onnx"
}
