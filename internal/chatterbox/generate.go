package chatterbox

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/langfod/chatterbox-onnx/internal/onnx"
)

// GenerationConfig holds the sampling parameters for one generation call.
// Zero values for MaxNewTokens, RepetitionPenalty, Temperature and TopP mean
// "use the default"; TopK zero disables top-k filtering (the default is
// DefaultGenerationConfig's 1000). Values are snapshotted when Generate is
// entered.
type GenerationConfig struct {
	MaxNewTokens      int
	RepetitionPenalty float32
	Temperature       float32
	TopK              int
	TopP              float32
	// Seed makes the call deterministic when non-zero.
	Seed uint64
	// ExemptStartToken excludes the start-of-speech token from the
	// repetition penalty. The trained model was sampled with the start token
	// penalized, so the default (false) keeps that behavior.
	ExemptStartToken bool
}

// DefaultGenerationConfig returns the sampling parameters the model was
// shipped with.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxNewTokens:      1024,
		RepetitionPenalty: 1.2,
		Temperature:       0.8,
		TopK:              1000,
		TopP:              0.95,
	}
}

func (c GenerationConfig) withDefaults() GenerationConfig {
	d := DefaultGenerationConfig()
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = d.MaxNewTokens
	}
	if c.RepetitionPenalty <= 0 {
		c.RepetitionPenalty = d.RepetitionPenalty
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.TopK < 0 {
		c.TopK = 0
	}
	if c.TopP <= 0 || c.TopP > 1 {
		c.TopP = d.TopP
	}
	return c
}

// ProgressFunc reports decode progress. step counts from zero; total is the
// configured token budget.
type ProgressFunc func(step, total int)

// Generate synthesizes 24 kHz float32 PCM from a token-ID sequence using the
// engine's current voice conditionals.
//
// The call runs in four stages: prefill embedding (conditioning embedding
// concatenated with the text embedding), the autoregressive decode loop with
// KV-cache handles moved from each step's outputs into the next step's
// inputs, decoder input assembly, and the conditional decoder. All stages
// are fatal on failure; partially produced audio is discarded.
func (e *Engine) Generate(tokenIDs []int64, cfg GenerationConfig, progress ProgressFunc) ([]float32, error) {
	if !e.IsReady() {
		return nil, ErrModelsNotReady
	}
	if !e.conds.Valid() {
		return nil, ErrConditionalsInvalid
	}
	if len(tokenIDs) == 0 {
		return nil, ErrEmptyTokens
	}

	cfg = cfg.withDefaults()
	if cfg.Seed != 0 {
		e.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}

	embedSess, err := e.runtime.Get(ModelEmbedTokens)
	if err != nil {
		return nil, err
	}
	lmSess, err := e.runtime.Get(ModelLanguageModel)
	if err != nil {
		return nil, err
	}
	decSess, err := e.runtime.Get(ModelConditionalDecoder)
	if err != nil {
		return nil, err
	}

	if len(e.conds.CondEmbShape) < 3 {
		return nil, fmt.Errorf("%w: cond_emb shape %v", ErrConditionalsInvalid, e.conds.CondEmbShape)
	}
	condSeq := e.conds.CondEmbShape[1]
	hidden := e.conds.CondEmbShape[2]

	// Pre-compute the text embedding once; step 0 consumes it as part of the
	// prefill and it is dropped afterwards.
	textEmb, textShape, err := e.embedTokens(embedSess, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(textShape) != 3 || textShape[2] != hidden {
		return nil, fmt.Errorf("%w: text embedding shape %v vs hidden %d", ErrEmbedding, textShape, hidden)
	}
	textSeq := textShape[1]

	slog.Info("starting generation",
		"tokens", len(tokenIDs),
		"max_new_tokens", cfg.MaxNewTokens,
		"variant", e.variant,
	)
	started := time.Now()

	// Name lookups happen once, before the loop.
	lmInputNames := lmSess.InputNames()
	kvSlot := make(map[string]int, len(lmInputNames))
	numKV := 0
	for _, name := range lmInputNames {
		if strings.Contains(name, "past_key_values") {
			kvSlot[name] = numKV
			numKV++
		}
	}
	kvDType := e.variant.KVCacheDType()

	// Buffers sized to their maximum once; resized, never reallocated.
	maxTotal := condSeq + textSeq + int64(cfg.MaxNewTokens)
	attentionMask := make([]int64, 0, maxTotal)
	positionIDs := make([]int64, 0, condSeq+textSeq)
	inputsEmbeds := make([]float32, 0, (condSeq+textSeq)*hidden)

	kvCache := make([]*onnx.Tensor, numKV)
	releaseKV := func() {
		for i, t := range kvCache {
			if t != nil {
				t.Close()
				kvCache[i] = nil
			}
		}
	}
	defer releaseKV()

	generated := make([]int64, 0, cfg.MaxNewTokens+1)
	generated = append(generated, StartSpeechToken)

	inputs := make(map[string]*onnx.Tensor, len(lmInputNames))
	position := int64(0)

	for step := 0; step < cfg.MaxNewTokens; step++ {
		if progress != nil {
			progress(step, cfg.MaxNewTokens)
		}

		var seqLen int64
		inputsEmbeds = inputsEmbeds[:0]
		if step == 0 {
			seqLen = condSeq + textSeq
			inputsEmbeds = append(inputsEmbeds, e.conds.CondEmb...)
			inputsEmbeds = append(inputsEmbeds, textEmb...)
			textEmb = nil
		} else {
			seqLen = 1
			emb, _, err := e.embedTokens(embedSess, generated[len(generated)-1:])
			if err != nil {
				return nil, fmt.Errorf("%w: step %d: %v", ErrEmbedding, step, err)
			}
			inputsEmbeds = append(inputsEmbeds, emb...)
		}

		// The mask is all ones and grows by exactly seqLen per step.
		total := position + seqLen
		for int64(len(attentionMask)) < total {
			attentionMask = append(attentionMask, 1)
		}

		positionIDs = positionIDs[:0]
		for i := int64(0); i < seqLen; i++ {
			positionIDs = append(positionIDs, position+i)
		}

		embT, err := onnx.NewTensor(inputsEmbeds, []int64{1, seqLen, hidden})
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrLanguageModel, step, err)
		}
		maskT, err := onnx.NewTensor(attentionMask, []int64{1, total})
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrLanguageModel, step, err)
		}
		posT, err := onnx.NewTensor(positionIDs, []int64{1, seqLen})
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrLanguageModel, step, err)
		}

		for _, name := range lmInputNames {
			switch {
			case name == "inputs_embeds":
				inputs[name] = embT
			case name == "attention_mask":
				inputs[name] = maskT
			case name == "position_ids":
				inputs[name] = posT
			default:
				slot, ok := kvSlot[name]
				if !ok {
					return nil, fmt.Errorf("%w: unknown language model input %q", ErrLanguageModel, name)
				}
				if kvCache[slot] == nil {
					empty, err := onnx.NewZeroTensor(kvDType, []int64{1, numKVHeads, 0, headDim})
					if err != nil {
						return nil, fmt.Errorf("%w: init kv cache: %v", ErrLanguageModel, err)
					}
					kvCache[slot] = empty
				}
				if kvCache[slot].DType() != kvDType {
					return nil, fmt.Errorf("%w: kv slot %q has dtype %s, want %s",
						ErrLanguageModel, name, kvCache[slot].DType(), kvDType)
				}
				inputs[name] = kvCache[slot]
			}
		}

		outputs, err := lmSess.Run(inputs)
		// The run consumed every input, including the moved-in KV handles.
		for i := range kvCache {
			kvCache[i] = nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrLanguageModel, step, err)
		}
		if len(outputs) < 1+numKV {
			closeTensors(outputs)
			return nil, fmt.Errorf("%w: step %d: %d outputs, want %d", ErrLanguageModel, step, len(outputs), 1+numKV)
		}

		// Only the last-position logits vector is materialized.
		logits := outputs[0]
		lshape := logits.Shape()
		vocab := int(lshape[len(lshape)-1])
		last, err := logits.FloatsAt((logits.Elems()/vocab-1)*vocab, vocab)
		logits.Close()
		if err != nil {
			closeTensors(outputs[1:])
			return nil, fmt.Errorf("%w: step %d: extract logits: %v", ErrLanguageModel, step, err)
		}

		history := generated
		if cfg.ExemptStartToken {
			history = generated[1:]
		}
		applyRepetitionPenalty(last, history, cfg.RepetitionPenalty)
		applyTemperature(last, cfg.Temperature)
		applyTopK(last, cfg.TopK)
		applyTopP(last, cfg.TopP)
		softmaxInPlace(last)
		next := sampleIndex(e.rng, last)

		generated = append(generated, next)

		if next == StopSpeechToken {
			closeTensors(outputs[1:])
			slog.Info("stop token detected", "step", step+1)
			break
		}

		position += seqLen

		// Present-KV outputs move into the cache slots for the next step.
		for i := 0; i < numKV; i++ {
			kvCache[i] = outputs[1+i]
		}
		closeTensors(outputs[1+numKV:])

		if (step+1)%100 == 0 {
			slog.Debug("generated tokens", "count", step+1)
		}
	}
	releaseKV()

	slog.Info("generated speech tokens",
		"count", len(generated),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	decoderTokens := assembleDecoderTokens(generated, e.conds.PromptToken)

	samples, err := e.decodeSpeech(decSess, decoderTokens)
	if err != nil {
		return nil, err
	}

	slog.Info("generated audio",
		"samples", len(samples),
		"seconds", float64(len(samples))/SampleRate,
	)

	return samples, nil
}

// embedTokens runs embed_tokens over ids and returns the embedding data and
// shape [1, len(ids), H].
func (e *Engine) embedTokens(sess *onnx.Session, ids []int64) ([]float32, []int64, error) {
	inputNames := sess.InputNames()
	if len(inputNames) != 1 {
		return nil, nil, fmt.Errorf("embed_tokens expects 1 input, has %d", len(inputNames))
	}

	t, err := onnx.NewTensor(append([]int64(nil), ids...), []int64{1, int64(len(ids))})
	if err != nil {
		return nil, nil, err
	}

	outputs, err := sess.Run(map[string]*onnx.Tensor{inputNames[0]: t})
	if err != nil {
		return nil, nil, err
	}
	defer closeTensors(outputs)

	if len(outputs) == 0 {
		return nil, nil, fmt.Errorf("embed_tokens produced no outputs")
	}

	data, err := outputs[0].Floats()
	if err != nil {
		return nil, nil, err
	}

	return data, outputs[0].Shape(), nil
}

// assembleDecoderTokens builds the conditional decoder's token input: the
// generated sequence with the leading start token removed and the trailing
// stop token (if present) dropped, padded with three silence tokens and
// prefixed by the voice's prompt tokens.
func assembleDecoderTokens(generated, promptToken []int64) []int64 {
	end := len(generated)
	if end > 0 && generated[end-1] == StopSpeechToken {
		end--
	}
	start := 1
	if start > end {
		start = end
	}
	speech := generated[start:end]

	out := make([]int64, 0, len(promptToken)+len(speech)+silencePadTokens)
	out = append(out, promptToken...)
	out = append(out, speech...)
	for i := 0; i < silencePadTokens; i++ {
		out = append(out, SilenceToken)
	}

	return out
}

// decodeSpeech runs the conditional decoder over the assembled token
// sequence plus the speaker tensors and returns the audio waveform.
func (e *Engine) decodeSpeech(sess *onnx.Session, tokens []int64) ([]float32, error) {
	inputs := make(map[string]*onnx.Tensor, 3)

	for _, name := range sess.InputNames() {
		var (
			t   *onnx.Tensor
			err error
		)
		switch name {
		case "speech_tokens":
			t, err = onnx.NewTensor(tokens, []int64{1, int64(len(tokens))})
		case "speaker_embeddings":
			t, err = onnx.NewTensor(e.conds.SpeakerEmbeddings, e.conds.SpeakerEmbeddingsShape)
		case "speaker_features":
			t, err = onnx.NewTensor(e.conds.SpeakerFeatures, e.conds.SpeakerFeaturesShape)
		default:
			return nil, fmt.Errorf("%w: unknown decoder input %q", ErrDecoder, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: input %q: %v", ErrDecoder, name, err)
		}
		inputs[name] = t
	}

	slog.Info("running conditional decoder", "tokens", len(tokens))

	outputs, err := sess.Run(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoder, err)
	}
	defer closeTensors(outputs)

	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", ErrDecoder)
	}

	samples, err := outputs[0].Floats()
	if err != nil {
		return nil, fmt.Errorf("%w: extract audio: %v", ErrDecoder, err)
	}

	return samples, nil
}
