// Package config loads layered configuration for the chatterbox CLI:
// defaults, optional config file, CHATTERBOX_* environment variables and
// command-line flags, highest precedence last.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	Paths      PathsConfig      `mapstructure:"paths"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Generation GenerationConfig `mapstructure:"generation"`
	TTS        TTSConfig        `mapstructure:"tts"`
}

type PathsConfig struct {
	ModelsDir string `mapstructure:"models_dir"`
	CacheDir  string `mapstructure:"cache_dir"`
}

type RuntimeConfig struct {
	Quant          string `mapstructure:"quant"`
	Threads        int    `mapstructure:"threads"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
}

type GenerationConfig struct {
	MaxNewTokens      int     `mapstructure:"max_new_tokens"`
	RepetitionPenalty float64 `mapstructure:"repetition_penalty"`
	Temperature       float64 `mapstructure:"temperature"`
	TopK              int     `mapstructure:"top_k"`
	TopP              float64 `mapstructure:"top_p"`
	Seed              uint64  `mapstructure:"seed"`
}

type TTSConfig struct {
	Voice         string `mapstructure:"voice"`
	Persist       bool   `mapstructure:"persist"`
	MaxChunkChars int    `mapstructure:"max_chunk_chars"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			ModelsDir: "models",
			CacheDir:  "cache",
		},
		Runtime: RuntimeConfig{
			Quant:          "q4",
			Threads:        0,
			ORTLibraryPath: "",
		},
		Generation: GenerationConfig{
			MaxNewTokens:      1024,
			RepetitionPenalty: 1.2,
			Temperature:       0.8,
			TopK:              1000,
			TopP:              0.95,
			Seed:              0,
		},
		TTS: TTSConfig{
			Voice:         "",
			Persist:       true,
			MaxChunkChars: 0,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-models-dir", defaults.Paths.ModelsDir, "Directory holding the ONNX model files")
	fs.String("paths-cache-dir", defaults.Paths.CacheDir, "Directory for cached voice conditionals")
	fs.String("runtime-quant", defaults.Runtime.Quant, "Model quant variant (fp32|q8|q4|q4f16)")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "ONNX Runtime thread count (0 = max(2, cores/4))")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.Int("generation-max-new-tokens", defaults.Generation.MaxNewTokens, "Maximum speech tokens per utterance")
	fs.Float64("generation-repetition-penalty", defaults.Generation.RepetitionPenalty, "Repetition penalty (>1 reduces repeats)")
	fs.Float64("generation-temperature", defaults.Generation.Temperature, "Sampling temperature")
	fs.Int("generation-top-k", defaults.Generation.TopK, "Top-k sampling cutoff (0 disables)")
	fs.Float64("generation-top-p", defaults.Generation.TopP, "Top-p (nucleus) sampling cutoff")
	fs.Uint64("generation-seed", defaults.Generation.Seed, "PRNG seed (0 = nondeterministic)")
	fs.String("tts-voice", defaults.TTS.Voice, "Reference voice WAV path or cached voice key")
	fs.Bool("tts-persist", defaults.TTS.Persist, "Persist freshly encoded voice conditionals to the cache directory")
	fs.Int("tts-max-chunk-chars", defaults.TTS.MaxChunkChars, "Split input into sentence chunks of at most this many characters (0 disables)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("CHATTERBOX")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "CHATTERBOX_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("chatterbox")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.models_dir", c.Paths.ModelsDir)
	v.SetDefault("paths.cache_dir", c.Paths.CacheDir)
	v.SetDefault("runtime.quant", c.Runtime.Quant)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("generation.max_new_tokens", c.Generation.MaxNewTokens)
	v.SetDefault("generation.repetition_penalty", c.Generation.RepetitionPenalty)
	v.SetDefault("generation.temperature", c.Generation.Temperature)
	v.SetDefault("generation.top_k", c.Generation.TopK)
	v.SetDefault("generation.top_p", c.Generation.TopP)
	v.SetDefault("generation.seed", c.Generation.Seed)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.persist", c.TTS.Persist)
	v.SetDefault("tts.max_chunk_chars", c.TTS.MaxChunkChars)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.models_dir", "paths-models-dir")
	v.RegisterAlias("paths.cache_dir", "paths-cache-dir")
	v.RegisterAlias("runtime.quant", "runtime-quant")
	v.RegisterAlias("runtime.threads", "runtime-threads")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("generation.max_new_tokens", "generation-max-new-tokens")
	v.RegisterAlias("generation.repetition_penalty", "generation-repetition-penalty")
	v.RegisterAlias("generation.temperature", "generation-temperature")
	v.RegisterAlias("generation.top_k", "generation-top-k")
	v.RegisterAlias("generation.top_p", "generation-top-p")
	v.RegisterAlias("generation.seed", "generation-seed")
	v.RegisterAlias("tts.voice", "tts-voice")
	v.RegisterAlias("tts.persist", "tts-persist")
	v.RegisterAlias("tts.max_chunk_chars", "tts-max-chunk-chars")
}
