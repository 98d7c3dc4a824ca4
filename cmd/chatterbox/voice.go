package main

import (
	"fmt"
	"sort"

	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
	"github.com/langfod/chatterbox-onnx/internal/tts"
	"github.com/spf13/cobra"
)

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Manage cached voice conditionals",
	}

	cmd.AddCommand(newVoicePrepareCmd())
	cmd.AddCommand(newVoiceListCmd())
	cmd.AddCommand(newVoiceRemoveCmd())
	cmd.AddCommand(newVoiceClearCmd())

	return cmd
}

func newVoicePrepareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <reference.wav>",
		Short: "Encode a reference recording and cache its voice conditionals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			refPath := args[0]
			key := chatterbox.ExtractKey(refPath)

			if err := svc.Engine().PrepareConditionals(refPath); err != nil {
				return err
			}
			if err := svc.Cache().Put(key, svc.Engine().Conditionals(), true); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cached voice %q -> %s\n", key, cfg.Paths.CacheDir)
			return nil
		},
	}
}

func newVoiceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			cache := chatterbox.NewConditionalsCache(cfg.Paths.CacheDir)
			n := cache.LoadAllFromDisk()

			keys := cache.Keys()
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			if n == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no cached voices under %s\n", cfg.Paths.CacheDir)
			}
			return nil
		},
	}
}

func newVoiceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>",
		Short: "Remove one cached voice from memory and disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			cache := chatterbox.NewConditionalsCache(cfg.Paths.CacheDir)
			key := chatterbox.ExtractKey(args[0])
			if !cache.Remove(key) {
				return fmt.Errorf("voice %q not found in cache", key)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed voice %q\n", key)
			return nil
		},
	}
}

func newVoiceClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached voice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			chatterbox.NewConditionalsCache(cfg.Paths.CacheDir).Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "cleared voice cache under %s\n", cfg.Paths.CacheDir)
			return nil
		},
	}
}
