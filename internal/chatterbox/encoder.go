package chatterbox

import (
	"fmt"
	"log/slog"

	"github.com/langfod/chatterbox-onnx/internal/onnx"
)

// EncodeReference runs the speech encoder over a 24 kHz mono reference
// waveform and returns freshly allocated voice conditionals. The waveform
// must be at least five seconds long.
func (e *Engine) EncodeReference(samples []float32) (*VoiceConditionals, error) {
	if !e.IsReady() {
		return nil, ErrModelsNotReady
	}

	duration := float64(len(samples)) / SampleRate
	if duration < minReferenceSeconds {
		return nil, fmt.Errorf("%w: got %.2fs", ErrReferenceTooShort, duration)
	}

	sess, err := e.runtime.Get(ModelSpeechEncoder)
	if err != nil {
		return nil, err
	}

	inputNames := sess.InputNames()
	if len(inputNames) != 1 {
		return nil, fmt.Errorf("%w: %d inputs", ErrEncoderOutputMismatch, len(inputNames))
	}

	audioTensor, err := onnx.NewTensor(samples, []int64{1, int64(len(samples))})
	if err != nil {
		return nil, fmt.Errorf("build audio tensor: %w", err)
	}

	slog.Info("running speech encoder", "duration_s", duration)

	outputs, err := sess.Run(map[string]*onnx.Tensor{inputNames[0]: audioTensor})
	if err != nil {
		return nil, err
	}
	defer closeTensors(outputs)

	// Outputs arrive in graph order: cond_emb, prompt_token,
	// speaker_embeddings, speaker_features.
	if len(outputs) < 4 {
		return nil, fmt.Errorf("%w: %d outputs", ErrEncoderOutputMismatch, len(outputs))
	}

	// The output buffers belong to the runtime call; copy everything into a
	// standalone record.
	conds := &VoiceConditionals{}

	if conds.CondEmb, err = outputs[0].Floats(); err != nil {
		return nil, fmt.Errorf("extract cond_emb: %w", err)
	}
	conds.CondEmbShape = outputs[0].Shape()

	if conds.PromptToken, err = outputs[1].Int64s(); err != nil {
		return nil, fmt.Errorf("extract prompt_token: %w", err)
	}
	conds.PromptTokenShape = outputs[1].Shape()

	if conds.SpeakerEmbeddings, err = outputs[2].Floats(); err != nil {
		return nil, fmt.Errorf("extract speaker_embeddings: %w", err)
	}
	conds.SpeakerEmbeddingsShape = outputs[2].Shape()

	if conds.SpeakerFeatures, err = outputs[3].Floats(); err != nil {
		return nil, fmt.Errorf("extract speaker_features: %w", err)
	}
	conds.SpeakerFeaturesShape = outputs[3].Shape()

	slog.Info("voice conditionals prepared",
		"cond_emb", conds.CondEmbShape,
		"prompt_token", conds.PromptTokenShape,
		"speaker_embeddings", conds.SpeakerEmbeddingsShape,
		"speaker_features", conds.SpeakerFeaturesShape,
	)

	return conds, nil
}

func closeTensors(ts []*onnx.Tensor) {
	for _, t := range ts {
		if t != nil {
			t.Close()
		}
	}
}
