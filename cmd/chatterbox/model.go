package main

import (
	"fmt"
	"os"

	"github.com/langfod/chatterbox-onnx/internal/model"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Download and verify the ONNX model files",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelVerifyCmd())

	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var hfToken string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the model files for the configured quant variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			token := hfToken
			if token == "" {
				token = os.Getenv("HF_TOKEN")
			}

			return model.Download(model.DownloadOptions{
				Variant: cfg.Runtime.Quant,
				OutDir:  cfg.Paths.ModelsDir,
				HFToken: token,
				Stdout:  cmd.OutOrStdout(),
				Stderr:  cmd.ErrOrStderr(),
			})
		},
	}

	cmd.Flags().StringVar(&hfToken, "hf-token", "", "HuggingFace access token (default: HF_TOKEN env var)")

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify downloaded model files against the lock manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			results, err := model.Verify(cfg.Paths.ModelsDir, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !model.AllOK(results) {
				return fmt.Errorf("model verification failed")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "all model files verified")
			return nil
		},
	}
}
