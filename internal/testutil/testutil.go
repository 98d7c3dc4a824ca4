// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks (in order): the CHATTERBOX_ORT_LIB env var, then
// ORT_LIBRARY_PATH, then common system library paths.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"CHATTERBOX_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			_, err := os.Stat(p)
			if err == nil {
				return // found
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}
	// Fall back to common system locations.
	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		_, err := os.Stat(p)
		if err == nil {
			return // found
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set CHATTERBOX_ORT_LIB or ORT_LIBRARY_PATH")
}

// RequireModels skips the test if the four ONNX graphs for variant are not
// present under the directory named by CHATTERBOX_MODELS_DIR.
func RequireModels(tb testing.TB, variant chatterbox.QuantVariant) string {
	tb.Helper()

	dir := os.Getenv("CHATTERBOX_MODELS_DIR")
	if dir == "" {
		tb.Skip("CHATTERBOX_MODELS_DIR not set")
	}

	onnxDir, err := chatterbox.ResolveModelDir(dir)
	if err != nil {
		tb.Skipf("models not available: %v", err)
	}

	for _, name := range chatterbox.ModelNames {
		path := filepath.Join(onnxDir, variant.ModelFilename(name))
		if _, err := os.Stat(path); err != nil {
			tb.Skipf("model %s not available at %s", name, path)
		}
	}

	return dir
}
