package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
)

var (
	batchSubjects []string
	batchTypes    []string
	batchAll      bool
	batchLimit    int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Verify many subjects and print a summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		types := splitList(batchTypes)
		if len(types) == 0 {
			return eris.New("batch: at least one --types value is required")
		}
		ids := splitList(batchSubjects)
		if len(ids) == 0 && !batchAll {
			return eris.New("batch: pass --subjects or --all")
		}

		env, err := initEngine(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		if batchAll {
			subjects, err := env.Store.ListSubjects(ctx, batchLimit)
			if err != nil {
				return eris.Wrap(err, "batch: list subjects")
			}
			for _, s := range subjects {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) == 0 {
			zap.L().Warn("batch: no subjects to verify")
			return nil
		}

		sum := env.Service.RunBatch(ctx, model.BatchJob{SubjectIDs: ids, Types: types})
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchSubjects, "subjects", nil, "subject ids, comma separated")
	batchCmd.Flags().StringSliceVar(&batchTypes, "types", nil, "verification types, comma separated")
	batchCmd.Flags().BoolVar(&batchAll, "all", false, "verify every stored subject")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max subjects with --all (0 = store default)")
	rootCmd.AddCommand(batchCmd)
}
