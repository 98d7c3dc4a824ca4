package chatterbox

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/langfod/chatterbox-onnx/internal/audio"
	"github.com/langfod/chatterbox-onnx/internal/onnx"
)

// hfRepoDirName is the HuggingFace cache directory for the model repo.
const hfRepoDirName = "models--ResembleAI--chatterbox-turbo-ONNX"

// Engine owns the four model sessions and the current voice conditionals,
// and runs the generation pipeline. One engine serves one generation call at
// a time; run separate engines for concurrency.
type Engine struct {
	variant QuantVariant
	rtCfg   onnx.Config

	runtime *onnx.Runtime
	conds   *VoiceConditionals
	rng     *rand.Rand
}

// New creates an engine for the given quant variant. Models are loaded
// separately with LoadModels. The PRNG is seeded from platform entropy here;
// a non-zero GenerationConfig.Seed reseeds it per call.
func New(variant QuantVariant, rtCfg onnx.Config) (*Engine, error) {
	v, err := ParseQuantVariant(string(variant))
	if err != nil {
		return nil, err
	}

	return &Engine{
		variant: v,
		rtCfg:   rtCfg,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}, nil
}

// Variant returns the quant variant fixed at construction.
func (e *Engine) Variant() QuantVariant { return e.variant }

// LoadModels resolves the ONNX directory under modelsDir and loads the four
// graphs for the engine's variant. Any failure unloads whatever was loaded.
func (e *Engine) LoadModels(modelsDir string) error {
	if e.runtime != nil {
		e.UnloadModels()
	}

	onnxDir, err := ResolveModelDir(modelsDir)
	if err != nil {
		return err
	}

	slog.Info("loading ONNX models", "dir", onnxDir, "variant", e.variant)

	rt, err := onnx.NewRuntime(e.rtCfg)
	if err != nil {
		return err
	}

	for _, name := range ModelNames {
		path := filepath.Join(onnxDir, e.variant.ModelFilename(name))
		if err := rt.Load(name, path); err != nil {
			rt.Close()
			return err
		}
	}

	e.runtime = rt

	return nil
}

// UnloadModels releases every session and the runtime. Conditionals are kept.
func (e *Engine) UnloadModels() {
	if e.runtime != nil {
		e.runtime.Close()
		e.runtime = nil
	}
}

// IsReady reports whether all four sessions are loaded.
func (e *Engine) IsReady() bool {
	if e.runtime == nil {
		return false
	}
	for _, name := range ModelNames {
		if !e.runtime.Loaded(name) {
			return false
		}
	}
	return true
}

// PrepareConditionals loads the reference recording at audioPath, resamples
// it to 24 kHz mono normalized to [-1, 1], and runs the speech encoder. On
// success the engine's current conditionals are replaced; on failure they
// are untouched.
func (e *Engine) PrepareConditionals(audioPath string) error {
	if !e.IsReady() {
		return ErrModelsNotReady
	}

	samples, err := audio.LoadReference(audioPath, SampleRate)
	if err != nil {
		return fmt.Errorf("load reference audio: %w", err)
	}

	conds, err := e.EncodeReference(samples)
	if err != nil {
		return err
	}

	e.conds = conds

	return nil
}

// SetConditionals installs pre-computed conditionals, e.g. from the cache.
// The record is borrowed for as long as it remains current.
func (e *Engine) SetConditionals(conds *VoiceConditionals) {
	e.conds = conds
}

// Conditionals returns the engine's current conditionals, possibly nil.
func (e *Engine) Conditionals() *VoiceConditionals {
	return e.conds
}

// HasConditionals reports whether valid conditionals are installed.
func (e *Engine) HasConditionals() bool {
	return e.conds.Valid()
}

// Close unloads models. The engine is unusable afterwards.
func (e *Engine) Close() {
	e.UnloadModels()
}

// ResolveModelDir locates the directory holding the ONNX files. Accepted
// layouts, in order: modelsDir/onnx, a HuggingFace cache snapshot
// (modelsDir/models--ResembleAI--chatterbox-turbo-ONNX/snapshots/<hash>/onnx),
// and modelsDir itself.
func ResolveModelDir(modelsDir string) (string, error) {
	direct := filepath.Join(modelsDir, "onnx")
	if dirExists(direct) {
		return direct, nil
	}

	snapshots := filepath.Join(modelsDir, hfRepoDirName, "snapshots")
	if dirExists(snapshots) {
		dirents, err := os.ReadDir(snapshots)
		if err == nil {
			for _, ent := range dirents {
				if !ent.IsDir() {
					continue
				}
				candidate := filepath.Join(snapshots, ent.Name(), "onnx")
				if dirExists(candidate) {
					return candidate, nil
				}
			}
		}
	}

	if dirExists(modelsDir) {
		return modelsDir, nil
	}

	return "", fmt.Errorf("%w: tried %s, %s%c<hash>%connx, %s",
		ErrModelDirNotFound, direct, snapshots, filepath.Separator, filepath.Separator, modelsDir)
}

// FindTokenizer locates tokenizer.json near the models.
func FindTokenizer(modelsDir string) (string, error) {
	candidates := []string{filepath.Join(modelsDir, "tokenizer.json")}
	if onnxDir, err := ResolveModelDir(modelsDir); err == nil {
		candidates = append(candidates,
			filepath.Join(onnxDir, "tokenizer.json"),
			filepath.Join(filepath.Dir(onnxDir), "tokenizer.json"),
		)
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("tokenizer.json not found near %s (tried %s)",
		modelsDir, strings.Join(candidates, ", "))
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
