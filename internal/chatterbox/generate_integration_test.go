package chatterbox_test

import (
	"math"
	"testing"

	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
	"github.com/langfod/chatterbox-onnx/internal/onnx"
	"github.com/langfod/chatterbox-onnx/internal/testutil"
)

// newLoadedEngine builds an engine over the real model files, skipping when
// the environment lacks the runtime or the models.
func newLoadedEngine(t *testing.T, variant chatterbox.QuantVariant) *chatterbox.Engine {
	t.Helper()

	testutil.RequireONNXRuntime(t)
	modelsDir := testutil.RequireModels(t, variant)

	engine, err := chatterbox.New(variant, onnx.Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.LoadModels(modelsDir); err != nil {
		t.Fatalf("load models: %v", err)
	}
	t.Cleanup(engine.Close)

	if !engine.IsReady() {
		t.Fatal("engine not ready after LoadModels")
	}

	return engine
}

// referenceSine is a 6 s 24 kHz tone, long enough for the speech encoder's
// duration gate.
func referenceSine() []float32 {
	n := 6 * chatterbox.SampleRate
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.4 * math.Sin(2*math.Pi*220*float64(i)/chatterbox.SampleRate))
	}
	return out
}

func TestEncodeReferenceRejectsShortClip(t *testing.T) {
	engine := newLoadedEngine(t, chatterbox.QuantQ4)

	short := make([]float32, 3*chatterbox.SampleRate)
	if _, err := engine.EncodeReference(short); err == nil {
		t.Fatal("3 s reference accepted")
	}
	if engine.HasConditionals() {
		t.Fatal("failed encode left conditionals installed")
	}
}

func TestGenerateSeedDeterminism(t *testing.T) {
	engine := newLoadedEngine(t, chatterbox.QuantQ4)

	conds, err := engine.EncodeReference(referenceSine())
	if err != nil {
		t.Fatalf("encode reference: %v", err)
	}
	engine.SetConditionals(conds)

	tokens := []int64{10, 20, 30, chatterbox.EndOfTextToken, chatterbox.EndOfTextToken}
	cfg := chatterbox.GenerationConfig{MaxNewTokens: 8, Seed: 42}

	steps := 0
	first, err := engine.Generate(tokens, cfg, func(step, total int) { steps++ })
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("generation produced no audio")
	}
	if steps == 0 || steps > 8 {
		t.Fatalf("progress reported %d steps; want 1..8", steps)
	}

	second, err := engine.Generate(tokens, cfg, nil)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("seeded runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("seeded runs diverge at sample %d", i)
		}
	}
}

func TestConditionalsCacheWarmPath(t *testing.T) {
	engine := newLoadedEngine(t, chatterbox.QuantQ4)

	conds, err := engine.EncodeReference(referenceSine())
	if err != nil {
		t.Fatalf("encode reference: %v", err)
	}

	cache := chatterbox.NewConditionalsCache(t.TempDir())
	if err := cache.Put("tone", conds, true); err != nil {
		t.Fatalf("put: %v", err)
	}

	engine.SetConditionals(cache.Get("tone"))

	samples, err := engine.Generate(
		[]int64{10, 20, 30, chatterbox.EndOfTextToken, chatterbox.EndOfTextToken},
		chatterbox.GenerationConfig{MaxNewTokens: 8, Seed: 42},
		nil,
	)
	if err != nil {
		t.Fatalf("generate from cached conditionals: %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("no audio from cached conditionals")
	}
}
