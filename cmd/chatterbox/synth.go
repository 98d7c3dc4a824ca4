package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/langfod/chatterbox-onnx/internal/audio"
	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
	"github.com/langfod/chatterbox-onnx/internal/tts"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var text string
	var tokensFile string
	var out string
	var voice string
	var showProgress bool
	var chunk bool
	var maxChunkChars int

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			selectedVoice := cfg.TTS.Voice
			if voice != "" {
				selectedVoice = voice
			}

			svc, err := tts.NewService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			if chunk {
				svc.MaxChunkChars = maxChunkChars
			}

			var progress chatterbox.ProgressFunc
			if showProgress {
				progress = func(step, total int) {
					if step%50 == 0 {
						fmt.Fprintf(os.Stderr, "  step %d/%d\r", step, total)
					}
				}
			}

			var samples []float32
			if tokensFile != "" {
				tokens, err := readTokenFile(tokensFile)
				if err != nil {
					return err
				}
				samples, err = svc.SynthesizeTokens(tokens, selectedVoice, progress)
				if err != nil {
					return err
				}
			} else {
				inputText, err := readSynthText(text, os.Stdin)
				if err != nil {
					return err
				}
				samples, err = svc.Synthesize(inputText, selectedVoice, progress)
				if err != nil {
					return err
				}
			}

			return writeSynthOutput(out, samples, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&tokensFile, "tokens-file", "", "Path to pre-tokenized token-ID file (alternative to --text)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&voice, "voice", "", "Reference voice WAV path or cached voice key (overrides config)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Print generation progress to stderr")
	cmd.Flags().BoolVar(&chunk, "chunk", false, "Split text into sentence chunks and synthesize sequentially")
	cmd.Flags().IntVar(&maxChunkChars, "max-chunk-chars", 220, "Maximum characters per chunk when --chunk is enabled")

	return cmd
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}

// readTokenFile parses a whitespace- or comma-separated list of token IDs.
// Lines starting with '#' are comments.
func readTokenFile(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}

	var tokens []int64
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, field := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad token %q in %s: %w", field, path, err)
			}
			tokens = append(tokens, id)
		}
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("tokens file %s holds no tokens", path)
	}

	return tokens, nil
}

func writeSynthOutput(outPath string, samples []float32, stdout io.Writer) error {
	wavData, err := audio.EncodeWAV(samples)
	if err != nil {
		return fmt.Errorf("encode WAV: %w", err)
	}

	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}
