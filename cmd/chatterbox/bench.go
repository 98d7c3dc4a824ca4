package main

import (
	"github.com/langfod/chatterbox-onnx/internal/bench"
	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
	"github.com/langfod/chatterbox-onnx/internal/tts"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var text string
	var voice string
	var runs int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure synthesis real-time factor (one cold run plus measured warm runs)",
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

			results, err := bench.Run(func() ([]float32, error) {
				return svc.Synthesize(text, selectedVoice, nil)
			}, runs, chatterbox.SampleRate, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			bench.Report(results, cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "The quick brown fox jumps over the lazy dog.", "Benchmark text")
	cmd.Flags().StringVar(&voice, "voice", "", "Reference voice WAV path or cached voice key")
	cmd.Flags().IntVar(&runs, "runs", 3, "Number of measured warm runs")

	return cmd
}
