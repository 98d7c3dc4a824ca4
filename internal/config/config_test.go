package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	return &fakeBinder{fs: fs}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.ModelsDir != "models" {
		t.Errorf("ModelsDir = %q; want %q", cfg.Paths.ModelsDir, "models")
	}
	if cfg.Paths.CacheDir != "cache" {
		t.Errorf("CacheDir = %q; want %q", cfg.Paths.CacheDir, "cache")
	}
	if cfg.Runtime.Quant != "q4" {
		t.Errorf("Runtime.Quant = %q; want q4", cfg.Runtime.Quant)
	}
	if cfg.Runtime.Threads != 0 {
		t.Errorf("Runtime.Threads = %d; want 0 (auto)", cfg.Runtime.Threads)
	}
	if cfg.Generation.MaxNewTokens != 1024 {
		t.Errorf("MaxNewTokens = %d; want 1024", cfg.Generation.MaxNewTokens)
	}
	if cfg.Generation.RepetitionPenalty != 1.2 {
		t.Errorf("RepetitionPenalty = %v; want 1.2", cfg.Generation.RepetitionPenalty)
	}
	if cfg.Generation.Temperature != 0.8 {
		t.Errorf("Temperature = %v; want 0.8", cfg.Generation.Temperature)
	}
	if cfg.Generation.TopK != 1000 {
		t.Errorf("TopK = %d; want 1000", cfg.Generation.TopK)
	}
	if cfg.Generation.TopP != 0.95 {
		t.Errorf("TopP = %v; want 0.95", cfg.Generation.TopP)
	}
	if cfg.Generation.Seed != 0 {
		t.Errorf("Seed = %d; want 0", cfg.Generation.Seed)
	}
	if !cfg.TTS.Persist {
		t.Error("TTS.Persist = false; want true")
	}
	if cfg.TTS.MaxChunkChars != 0 {
		t.Errorf("TTS.MaxChunkChars = %d; want 0 (disabled)", cfg.TTS.MaxChunkChars)
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Runtime.Quant != "q4" {
		t.Errorf("Quant = %q; want q4", cfg.Runtime.Quant)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want info", cfg.LogLevel)
	}
}

func TestLoadFlagOverride(t *testing.T) {
	binder := newFlagBinder(DefaultConfig())
	if err := binder.fs.Parse([]string{
		"--runtime-quant=q4f16",
		"--generation-seed=42",
		"--paths-cache-dir=/tmp/voices",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Runtime.Quant != "q4f16" {
		t.Errorf("Quant = %q; want q4f16", cfg.Runtime.Quant)
	}
	if cfg.Generation.Seed != 42 {
		t.Errorf("Seed = %d; want 42", cfg.Generation.Seed)
	}
	if cfg.Paths.CacheDir != "/tmp/voices" {
		t.Errorf("CacheDir = %q; want /tmp/voices", cfg.Paths.CacheDir)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatterbox.yaml")
	yaml := "paths:\n  models_dir: /data/models\nruntime:\n  quant: fp32\ngeneration:\n  top_k: 50\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(LoadOptions{ConfigFile: path, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Paths.ModelsDir != "/data/models" {
		t.Errorf("ModelsDir = %q; want /data/models", cfg.Paths.ModelsDir)
	}
	if cfg.Runtime.Quant != "fp32" {
		t.Errorf("Quant = %q; want fp32", cfg.Runtime.Quant)
	}
	if cfg.Generation.TopK != 50 {
		t.Errorf("TopK = %d; want 50", cfg.Generation.TopK)
	}
	// Unset values keep defaults.
	if cfg.Generation.Temperature != 0.8 {
		t.Errorf("Temperature = %v; want 0.8", cfg.Generation.Temperature)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHATTERBOX_RUNTIME_THREADS", "6")
	t.Setenv("CHATTERBOX_ORT_LIB", "/opt/ort/libonnxruntime.so")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Runtime.Threads != 6 {
		t.Errorf("Threads = %d; want 6", cfg.Runtime.Threads)
	}
	if cfg.Runtime.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Errorf("ORTLibraryPath = %q; want /opt/ort/libonnxruntime.so", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: "nope/missing.yaml", Defaults: DefaultConfig()})
	if err == nil {
		t.Fatal("missing explicit config file accepted")
	}
}
