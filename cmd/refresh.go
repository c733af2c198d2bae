package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refreshConcurrency int

var refreshCmd = &cobra.Command{
	Use:   "refresh [source-id...]",
	Short: "Download and index registry data",
	Long:  "Rebuilds the index of each named source, or of every enabled indexed source when none are named, and records one refresh attempt per source.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "refresh")
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if len(ids) == 0 {
			for _, s := range env.Registry.Indexed() {
				ids = append(ids, s.ID)
			}
		}
		concurrency := refreshConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Scheduler.Concurrency
		}

		attempts := env.Manager.RefreshMany(ctx, ids, concurrency)
		failed := 0
		for _, a := range attempts {
			if !a.Success {
				failed++
			}
		}
		zap.L().Info("refresh complete", zap.Int("sources", len(attempts)), zap.Int("failed", failed))

		if err := printJSON(cmd.OutOrStdout(), attempts); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("refresh: %d of %d sources failed", failed, len(attempts))
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().IntVar(&refreshConcurrency, "concurrency", 0, "parallel source refreshes (default from config)")
	rootCmd.AddCommand(refreshCmd)
}
