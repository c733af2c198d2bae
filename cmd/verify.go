package main

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/verify-cli/internal/store"
)

var verifyTypes []string

var verifyCmd = &cobra.Command{
	Use:   "verify <subject-id>",
	Short: "Run verification checks for one subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		types := splitList(verifyTypes)
		if len(types) == 0 {
			return eris.New("verify: at least one --types value is required")
		}

		env, err := initEngine(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Store.GetSubject(ctx, args[0]); err != nil {
			if errors.Is(err, store.ErrSubjectNotFound) {
				return eris.Errorf("verify: subject %q not found", args[0])
			}
			return eris.Wrap(err, "verify: get subject")
		}

		verdicts := env.Service.VerifyOne(ctx, args[0], types)
		return printJSON(cmd.OutOrStdout(), verdicts)
	},
}

func init() {
	verifyCmd.Flags().StringSliceVar(&verifyTypes, "types", nil, "verification types, comma separated (e.g. oig,sam,license)")
	rootCmd.AddCommand(verifyCmd)
}
