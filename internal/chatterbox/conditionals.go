package chatterbox

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	condMagic   uint32 = 0x434F4E44 // "COND"
	condVersion uint32 = 1

	// maxCondDims bounds the per-array rank read from disk; the four arrays
	// are at most rank 3. Anything larger is a corrupt or foreign file.
	maxCondDims = 8
)

// VoiceConditionals holds the four tensors the speech encoder derives from a
// reference recording. Shapes are carried alongside the flat data. A record
// is immutable after construction.
type VoiceConditionals struct {
	CondEmb      []float32 // [1, S_c, H]
	CondEmbShape []int64

	PromptToken      []int64 // [1, S_p]
	PromptTokenShape []int64

	SpeakerEmbeddings      []float32 // [1, D_e]
	SpeakerEmbeddingsShape []int64

	SpeakerFeatures      []float32 // [1, S_f, D_f]
	SpeakerFeaturesShape []int64
}

// Valid reports whether all four arrays and their shapes are present.
func (c *VoiceConditionals) Valid() bool {
	if c == nil {
		return false
	}
	return len(c.CondEmb) > 0 && len(c.CondEmbShape) > 0 &&
		len(c.PromptToken) > 0 && len(c.PromptTokenShape) > 0 &&
		len(c.SpeakerEmbeddings) > 0 && len(c.SpeakerEmbeddingsShape) > 0 &&
		len(c.SpeakerFeatures) > 0 && len(c.SpeakerFeaturesShape) > 0
}

// Clone returns a deep copy.
func (c *VoiceConditionals) Clone() *VoiceConditionals {
	if c == nil {
		return nil
	}
	return &VoiceConditionals{
		CondEmb:                append([]float32(nil), c.CondEmb...),
		CondEmbShape:           append([]int64(nil), c.CondEmbShape...),
		PromptToken:            append([]int64(nil), c.PromptToken...),
		PromptTokenShape:       append([]int64(nil), c.PromptTokenShape...),
		SpeakerEmbeddings:      append([]float32(nil), c.SpeakerEmbeddings...),
		SpeakerEmbeddingsShape: append([]int64(nil), c.SpeakerEmbeddingsShape...),
		SpeakerFeatures:        append([]float32(nil), c.SpeakerFeatures...),
		SpeakerFeaturesShape:   append([]int64(nil), c.SpeakerFeaturesShape...),
	}
}

// Equal reports field-for-field equality, including shapes.
func (c *VoiceConditionals) Equal(o *VoiceConditionals) bool {
	if c == nil || o == nil {
		return c == o
	}
	return floatsEqual(c.CondEmb, o.CondEmb) && int64sEqual(c.CondEmbShape, o.CondEmbShape) &&
		int64sEqual(c.PromptToken, o.PromptToken) && int64sEqual(c.PromptTokenShape, o.PromptTokenShape) &&
		floatsEqual(c.SpeakerEmbeddings, o.SpeakerEmbeddings) && int64sEqual(c.SpeakerEmbeddingsShape, o.SpeakerEmbeddingsShape) &&
		floatsEqual(c.SpeakerFeatures, o.SpeakerFeatures) && int64sEqual(c.SpeakerFeaturesShape, o.SpeakerFeaturesShape)
}

// Encode writes the versioned binary blob: magic, version, then the four
// arrays in fixed order, each as num_dims, shape, byte count and raw
// little-endian element bytes.
func (c *VoiceConditionals) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, condMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, condVersion); err != nil {
		return err
	}

	if err := writeFloatArray(bw, c.CondEmb, c.CondEmbShape); err != nil {
		return err
	}
	if err := writeInt64Array(bw, c.PromptToken, c.PromptTokenShape); err != nil {
		return err
	}
	if err := writeFloatArray(bw, c.SpeakerEmbeddings, c.SpeakerEmbeddingsShape); err != nil {
		return err
	}
	if err := writeFloatArray(bw, c.SpeakerFeatures, c.SpeakerFeaturesShape); err != nil {
		return err
	}

	return bw.Flush()
}

// Save writes the record to path, creating parent directories. The write goes
// through a temp file in the same directory and a rename, so a crash never
// leaves a truncated blob under the final name.
func (c *VoiceConditionals) Save(path string) error {
	if !c.Valid() {
		return ErrConditionalsInvalid
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := c.Encode(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write conditionals: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("move conditionals into place: %w", err)
	}

	return nil
}

// DecodeConditionals reads a blob produced by Encode. A magic or version
// mismatch returns ErrCacheFormat; a truncated stream fails.
func DecodeConditionals(r io.Reader) (*VoiceConditionals, error) {
	br := bufio.NewReader(r)

	var magic, version uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != condMagic {
		return nil, fmt.Errorf("%w: magic 0x%08X", ErrCacheFormat, magic)
	}
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != condVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCacheFormat, version)
	}

	var c VoiceConditionals
	var err error

	if c.CondEmb, c.CondEmbShape, err = readFloatArray(br); err != nil {
		return nil, fmt.Errorf("read cond_emb: %w", err)
	}
	if c.PromptToken, c.PromptTokenShape, err = readInt64Array(br); err != nil {
		return nil, fmt.Errorf("read prompt_token: %w", err)
	}
	if c.SpeakerEmbeddings, c.SpeakerEmbeddingsShape, err = readFloatArray(br); err != nil {
		return nil, fmt.Errorf("read speaker_embeddings: %w", err)
	}
	if c.SpeakerFeatures, c.SpeakerFeaturesShape, err = readFloatArray(br); err != nil {
		return nil, fmt.Errorf("read speaker_features: %w", err)
	}

	return &c, nil
}

// LoadConditionals reads a record from path.
func LoadConditionals(path string) (*VoiceConditionals, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheRead, err)
	}
	defer f.Close()

	return DecodeConditionals(f)
}

func writeShape(w io.Writer, shape []int64) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(shape))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, shape)
}

func writeFloatArray(w io.Writer, data []float32, shape []int64) error {
	if err := writeShape(w, shape); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(data))*4); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

func writeInt64Array(w io.Writer, data []int64, shape []int64) error {
	if err := writeShape(w, shape); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(data))*8); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

func readShape(r io.Reader) ([]int64, error) {
	var numDims uint32
	if err := binary.Read(r, binary.LittleEndian, &numDims); err != nil {
		return nil, err
	}
	if numDims > maxCondDims {
		return nil, fmt.Errorf("%w: rank %d", ErrCacheFormat, numDims)
	}
	shape := make([]int64, numDims)
	if err := binary.Read(r, binary.LittleEndian, shape); err != nil {
		return nil, err
	}
	return shape, nil
}

func readByteCount(r io.Reader, elemSize uint64) (int, error) {
	var byteCount uint64
	if err := binary.Read(r, binary.LittleEndian, &byteCount); err != nil {
		return 0, err
	}
	if byteCount%elemSize != 0 {
		return 0, fmt.Errorf("%w: byte count %d not a multiple of %d", ErrCacheFormat, byteCount, elemSize)
	}
	if byteCount/elemSize > math.MaxInt32 {
		return 0, fmt.Errorf("%w: byte count %d too large", ErrCacheFormat, byteCount)
	}
	return int(byteCount / elemSize), nil
}

func readFloatArray(r io.Reader) ([]float32, []int64, error) {
	shape, err := readShape(r)
	if err != nil {
		return nil, nil, err
	}
	n, err := readByteCount(r, 4)
	if err != nil {
		return nil, nil, err
	}
	data := make([]float32, n)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

func readInt64Array(r io.Reader) ([]int64, []int64, error) {
	shape, err := readShape(r)
	if err != nil {
		return nil, nil, err
	}
	n, err := readByteCount(r, 8)
	if err != nil {
		return nil, nil, err
	}
	data := make([]int64, n)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

func floatsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func int64sEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
