package main

import (
	"fmt"

	"github.com/langfod/chatterbox-onnx/internal/doctor"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment: ONNX Runtime, model files, tokenizer, cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			res := doctor.Run(cfg, cmd.OutOrStdout())
			if res.Failed() {
				return fmt.Errorf("%d check(s) failed", len(res.Failures()))
			}

			fmt.Fprintln(cmd.OutOrStdout(), "environment looks good")
			return nil
		},
	}
}
