// Package onnx wraps ONNX Runtime behind a typed, name-indexed facade.
//
// A Runtime owns the shared session options and the set of loaded graph
// sessions. The ONNX Runtime environment itself is process-global in the
// underlying binding, so it is reference-counted here: the first Runtime
// initializes it, the last Close tears it down.
package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrModelNotFound indicates the model file is absent on disk.
	ErrModelNotFound = errors.New("model file not found")
	// ErrModelLoad indicates the runtime rejected the model file.
	ErrModelLoad = errors.New("model load failed")
	// ErrAlreadyLoaded indicates a second Load under the same logical name.
	ErrAlreadyLoaded = errors.New("model already loaded")
	// ErrSessionNotFound indicates Get for a name that was never loaded.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvocation wraps failures surfaced by the runtime during a run.
	ErrInvocation = errors.New("runtime invocation failed")
)

// Config holds runtime-level settings.
type Config struct {
	// LibraryPath points at the onnxruntime shared library. Empty means the
	// binding's platform default (or ORT_LIBRARY_PATH / CHATTERBOX_ORT_LIB).
	LibraryPath string
	// Threads is the intra-op and inter-op thread count. Zero derives
	// max(2, NumCPU/4); the generator is memory-bound and over-threading
	// worsens contention.
	Threads int
}

// DefaultThreads returns the derived thread count for this host.
func DefaultThreads() int {
	n := goruntime.NumCPU() / 4
	if n < 2 {
		n = 2
	}
	return n
}

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libraryPath == "" {
			for _, env := range []string{"CHATTERBOX_ORT_LIB", "ORT_LIBRARY_PATH"} {
				if p := os.Getenv(env); p != "" {
					libraryPath = p
					break
				}
			}
		}
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime environment: %w", err)
		}
		slog.Info("onnxruntime environment initialized", "library", libraryPath)
	}
	envRefs++

	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return
	}

	envRefs--
	if envRefs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// Runtime is the tensor runtime facade. Sessions are registered under logical
// names and share one set of session options, configured once at construction.
type Runtime struct {
	opts    *ort.SessionOptions
	threads int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRuntime initializes the facade: environment, shared session options
// (maximum graph optimization, memory pattern, CPU arena, under-subscribed
// thread pools).
func NewRuntime(cfg Config) (*Runtime, error) {
	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("create session options: %w", err)
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = DefaultThreads()
	}

	if err := configureSessionOptions(opts, threads); err != nil {
		_ = opts.Destroy()
		releaseEnvironment()
		return nil, err
	}

	slog.Info("tensor runtime ready", "threads", threads)

	return &Runtime{
		opts:     opts,
		threads:  threads,
		sessions: make(map[string]*Session),
	}, nil
}

func configureSessionOptions(opts *ort.SessionOptions, threads int) error {
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(threads); err != nil {
		return fmt.Errorf("set inter-op threads: %w", err)
	}
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return fmt.Errorf("set graph optimization level: %w", err)
	}
	if err := opts.SetMemPattern(true); err != nil {
		return fmt.Errorf("enable memory pattern: %w", err)
	}
	if err := opts.SetCpuMemArena(true); err != nil {
		return fmt.Errorf("enable CPU memory arena: %w", err)
	}
	return nil
}

// Threads returns the configured intra/inter-op thread count.
func (r *Runtime) Threads() int {
	return r.threads
}

// Load opens the graph at path and registers it under name.
func (r *Runtime) Load(name, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyLoaded, name)
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}

	s, err := newSession(name, path, r.opts)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrModelLoad, name, err)
	}

	r.sessions[name] = s
	slog.Info("loaded model",
		"name", name,
		"path", path,
		"inputs", len(s.inputNames),
		"outputs", len(s.outputNames),
	)

	return nil
}

// Get returns the session registered under name.
func (r *Runtime) Get(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}

	return s, nil
}

// Loaded reports whether a session is registered under name.
func (r *Runtime) Loaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[name]

	return ok
}

// Close destroys all sessions, then the shared options, then releases the
// environment. Safe to call more than once.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, s := range r.sessions {
		s.close()
		delete(r.sessions, name)
	}

	if r.opts != nil {
		_ = r.opts.Destroy()
		r.opts = nil
		releaseEnvironment()
	}
}
