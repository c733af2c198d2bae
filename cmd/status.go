package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
)

type statusReport struct {
	Sources       []model.SourceStatus   `json:"sources"`
	LastRefreshes []model.RefreshAttempt `json:"last_refreshes"`
	Verdicts      *store.Summary         `json:"verdicts"`
	Types         []string               `json:"verification_types"`
	Schedule      string                 `json:"schedule"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured sources, recent refreshes and verdict totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		refreshes, err := env.Store.LatestRefreshes(ctx)
		if err != nil {
			return eris.Wrap(err, "status: latest refreshes")
		}
		sum, err := env.Store.Summary(ctx)
		if err != nil {
			return eris.Wrap(err, "status: summary")
		}

		return printJSON(cmd.OutOrStdout(), statusReport{
			Sources:       env.Service.SourceStatus(),
			LastRefreshes: refreshes,
			Verdicts:      sum,
			Types:         env.Router.Types(),
			Schedule:      env.Scheduler.String(),
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
