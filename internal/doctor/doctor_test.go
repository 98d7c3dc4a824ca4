package doctor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/langfod/chatterbox-onnx/internal/config"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Paths.ModelsDir = t.TempDir()
	cfg.Paths.CacheDir = filepath.Join(t.TempDir(), "cache")
	return cfg
}

func TestRunReportsMissingModels(t *testing.T) {
	cfg := baseConfig(t)

	var out bytes.Buffer
	res := Run(cfg, &out)

	if !res.Failed() {
		t.Fatal("empty environment passed")
	}
	text := out.String()
	if !strings.Contains(text, "model speech_encoder") {
		t.Errorf("output missing speech_encoder check:\n%s", text)
	}
	if !strings.Contains(text, "cache directory") {
		t.Errorf("output missing cache check:\n%s", text)
	}
}

func TestRunPassesModelChecksWithFiles(t *testing.T) {
	cfg := baseConfig(t)
	onnxDir := filepath.Join(cfg.Paths.ModelsDir, "onnx")
	if err := os.MkdirAll(onnxDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"speech_encoder_q4.onnx", "embed_tokens_q4.onnx", "language_model_q4.onnx", "conditional_decoder_q4.onnx", "tokenizer.json"} {
		if err := os.WriteFile(filepath.Join(onnxDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	res := Run(cfg, &out)

	for _, f := range res.Failures() {
		if strings.Contains(f, "model ") || strings.Contains(f, "tokenizer") || strings.Contains(f, "cache") {
			t.Errorf("unexpected failure: %s", f)
		}
	}
	if !strings.Contains(out.String(), PassMark+" model speech_encoder") {
		t.Errorf("speech_encoder did not pass:\n%s", out.String())
	}
}

func TestRunRejectsBadVariant(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Runtime.Quant = "int8"

	var out bytes.Buffer
	res := Run(cfg, &out)

	if !res.Failed() {
		t.Fatal("bad variant passed")
	}
	found := false
	for _, f := range res.Failures() {
		if strings.Contains(f, "unsupported quant variant") {
			found = true
		}
	}
	if !found {
		t.Errorf("failures = %v; want quant variant failure", res.Failures())
	}
}

func TestCheckWritableDir(t *testing.T) {
	if err := checkWritableDir(filepath.Join(t.TempDir(), "new")); err != nil {
		t.Errorf("fresh dir not writable: %v", err)
	}
	if err := checkWritableDir(""); err == nil {
		t.Error("empty dir accepted")
	}
}
