// Package doctor provides environment preflight checks for chatterbox.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
	"github.com/langfod/chatterbox-onnx/internal/config"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all environment checks and writes human-readable output to w:
// the ONNX Runtime shared library, the four model files for the configured
// variant, tokenizer.json and cache directory writability.
func Run(cfg config.Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime shared library --------------------------------------
	if lib := findORTLibrary(cfg.Runtime.ORTLibraryPath); lib != "" {
		fmt.Fprintf(w, "%s onnxruntime library: %s\n", PassMark, lib)
	} else {
		res.fail("onnxruntime library not found")
		fmt.Fprintf(w, "%s onnxruntime library: not found (set --ort-lib or CHATTERBOX_ORT_LIB)\n", FailMark)
	}

	// ---- model files ------------------------------------------------------
	variant, err := chatterbox.ParseQuantVariant(cfg.Runtime.Quant)
	if err != nil {
		res.fail(err.Error())
		fmt.Fprintf(w, "%s quant variant %q: %v\n", FailMark, cfg.Runtime.Quant, err)
	} else {
		onnxDir, err := chatterbox.ResolveModelDir(cfg.Paths.ModelsDir)
		if err != nil {
			res.fail(err.Error())
			fmt.Fprintf(w, "%s models directory: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s models directory: %s\n", PassMark, onnxDir)
			for _, name := range chatterbox.ModelNames {
				path := filepath.Join(onnxDir, variant.ModelFilename(name))
				if fi, err := os.Stat(path); err != nil {
					res.fail(fmt.Sprintf("model %s: %v", name, err))
					fmt.Fprintf(w, "%s model %s: not found (%s)\n", FailMark, name, path)
				} else {
					fmt.Fprintf(w, "%s model %s: %s (%d MiB)\n", PassMark, name, path, fi.Size()>>20)
				}
			}
		}
	}

	// ---- tokenizer --------------------------------------------------------
	if path, err := chatterbox.FindTokenizer(cfg.Paths.ModelsDir); err != nil {
		res.fail(err.Error())
		fmt.Fprintf(w, "%s tokenizer.json: not found\n", FailMark)
	} else {
		fmt.Fprintf(w, "%s tokenizer.json: %s\n", PassMark, path)
	}

	// ---- cache directory --------------------------------------------------
	if err := checkWritableDir(cfg.Paths.CacheDir); err != nil {
		res.fail(fmt.Sprintf("cache directory: %v", err))
		fmt.Fprintf(w, "%s cache directory %s: %v\n", FailMark, cfg.Paths.CacheDir, err)
	} else {
		fmt.Fprintf(w, "%s cache directory: %s\n", PassMark, cfg.Paths.CacheDir)
	}

	return res
}

func findORTLibrary(configured string) string {
	candidates := []string{configured}
	for _, env := range []string{"CHATTERBOX_ORT_LIB", "ORT_LIBRARY_PATH"} {
		candidates = append(candidates, os.Getenv(env))
	}
	candidates = append(candidates,
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	)

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	return ""
}

func checkWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".doctor*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
