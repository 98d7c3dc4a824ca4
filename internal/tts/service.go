// Package tts composes the tokenizer, the inference engine and the
// voice-conditionals cache into a single synthesis entry point.
package tts

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
	"github.com/langfod/chatterbox-onnx/internal/config"
	"github.com/langfod/chatterbox-onnx/internal/onnx"
	"github.com/langfod/chatterbox-onnx/internal/text"
	"github.com/langfod/chatterbox-onnx/internal/tokenizer"
)

// Service owns an engine, a tokenizer and a conditionals cache. One service
// serves one synthesis call at a time.
type Service struct {
	cfg    config.Config
	engine *chatterbox.Engine
	cache  *chatterbox.ConditionalsCache
	tok    tokenizer.Tokenizer

	// Persist controls whether freshly encoded conditionals are written to
	// the cache directory.
	Persist bool
	// MaxChunkChars bounds the sentence chunks synthesized per generation
	// call; 0 synthesizes the whole input at once.
	MaxChunkChars int
}

// NewService builds the full pipeline from config: parses the quant variant,
// loads the four models, opens the tokenizer and primes the cache from disk.
func NewService(cfg config.Config) (*Service, error) {
	variant, err := chatterbox.ParseQuantVariant(cfg.Runtime.Quant)
	if err != nil {
		return nil, err
	}

	engine, err := chatterbox.New(variant, onnx.Config{
		LibraryPath: cfg.Runtime.ORTLibraryPath,
		Threads:     cfg.Runtime.Threads,
	})
	if err != nil {
		return nil, err
	}

	if err := engine.LoadModels(cfg.Paths.ModelsDir); err != nil {
		return nil, err
	}

	tokPath, err := chatterbox.FindTokenizer(cfg.Paths.ModelsDir)
	if err != nil {
		engine.Close()
		return nil, err
	}
	tok, err := tokenizer.NewFromFile(tokPath)
	if err != nil {
		engine.Close()
		return nil, err
	}

	cache := chatterbox.NewConditionalsCache(cfg.Paths.CacheDir)
	cache.LoadAllFromDisk()

	return &Service{
		cfg:           cfg,
		engine:        engine,
		cache:         cache,
		tok:           tok,
		Persist:       cfg.TTS.Persist,
		MaxChunkChars: cfg.TTS.MaxChunkChars,
	}, nil
}

// Engine exposes the underlying engine, e.g. for the voice prepare command.
func (s *Service) Engine() *chatterbox.Engine { return s.engine }

// Cache exposes the conditionals cache.
func (s *Service) Cache() *chatterbox.ConditionalsCache { return s.cache }

// Synthesize normalizes input, splits it into sentence chunks when
// MaxChunkChars is set, resolves the voice reference through the cache
// (encoding the reference recording on a miss) and runs one generation per
// chunk, concatenating the audio. voiceRef may be a reference WAV path or a
// bare cache key.
func (s *Service) Synthesize(input, voiceRef string, progress chatterbox.ProgressFunc) ([]float32, error) {
	normalized := text.Normalize(input)
	chunks := text.ChunkBySentence(normalized, s.MaxChunkChars)

	if err := s.UseVoice(voiceRef); err != nil {
		return nil, err
	}

	var merged []float32
	for i, chunk := range chunks {
		tokens, err := s.tok.Encode(chunk)
		if err != nil {
			return nil, fmt.Errorf("tokenize chunk %d: %w", i+1, err)
		}

		samples, err := s.engine.Generate(tokens, s.generationConfig(), progress)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}

		if len(chunks) == 1 {
			return samples, nil
		}
		merged = append(merged, samples...)
	}

	slog.Debug("chunked synthesis complete", "chunks", len(chunks), "samples", len(merged))

	return merged, nil
}

// SynthesizeTokens runs generation over pre-tokenized input.
func (s *Service) SynthesizeTokens(tokens []int64, voiceRef string, progress chatterbox.ProgressFunc) ([]float32, error) {
	if err := s.UseVoice(voiceRef); err != nil {
		return nil, err
	}

	return s.engine.Generate(tokens, s.generationConfig(), progress)
}

// UseVoice installs the conditionals for voiceRef on the engine: cache hit
// first, then disk, then a fresh speech-encoder run over the reference
// recording (cached afterwards). An empty voiceRef keeps the engine's
// current conditionals.
func (s *Service) UseVoice(voiceRef string) error {
	if strings.TrimSpace(voiceRef) == "" {
		if !s.engine.HasConditionals() {
			return chatterbox.ErrConditionalsInvalid
		}
		return nil
	}

	key := chatterbox.ExtractKey(voiceRef)

	if conds := s.cache.Get(key); conds != nil {
		s.engine.SetConditionals(conds)
		return nil
	}

	if err := s.cache.LoadFromDisk(key); err == nil {
		s.engine.SetConditionals(s.cache.Get(key))
		return nil
	} else if !chatterbox.IsMiss(err) {
		slog.Warn("cache load failed, re-encoding reference", "key", key, "err", err)
	}

	// Miss on both tiers: voiceRef must point at a reference recording.
	if err := s.engine.PrepareConditionals(voiceRef); err != nil {
		return err
	}

	if err := s.cache.Put(key, s.engine.Conditionals(), s.Persist); err != nil {
		// The entry is in memory; a persist failure only costs the next
		// process start.
		slog.Warn("failed to persist voice conditionals", "key", key, "err", err)
	}

	return nil
}

func (s *Service) generationConfig() chatterbox.GenerationConfig {
	g := s.cfg.Generation
	return chatterbox.GenerationConfig{
		MaxNewTokens:      g.MaxNewTokens,
		RepetitionPenalty: float32(g.RepetitionPenalty),
		Temperature:       float32(g.Temperature),
		TopK:              g.TopK,
		TopP:              float32(g.TopP),
		Seed:              g.Seed,
	}
}

// Close releases the engine's models.
func (s *Service) Close() {
	s.engine.Close()
}
