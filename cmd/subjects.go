package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/roster"
)

var (
	subjectsFile  string
	subjectsLimit int
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "Manage stored subject profiles",
}

var subjectsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import subjects from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		subjects, err := roster.ReadFile(ctx, subjectsFile)
		if err != nil {
			return eris.Wrap(err, "subjects import")
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.PutSubjects(ctx, subjects)
		if err != nil {
			return eris.Wrap(err, "subjects import")
		}
		zap.L().Info("import complete", zap.Int("subjects", n), zap.String("file", subjectsFile))
		return printJSON(cmd.OutOrStdout(), map[string]int{"imported": n})
	},
}

var subjectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored subjects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		subjects, err := st.ListSubjects(ctx, subjectsLimit)
		if err != nil {
			return eris.Wrap(err, "subjects list")
		}
		return printJSON(cmd.OutOrStdout(), subjects)
	},
}

func init() {
	subjectsImportCmd.Flags().StringVar(&subjectsFile, "file", "", "path to CSV or XLSX file (required)")
	_ = subjectsImportCmd.MarkFlagRequired("file")
	subjectsListCmd.Flags().IntVar(&subjectsLimit, "limit", 0, "max subjects (0 = store default)")
	subjectsCmd.AddCommand(subjectsImportCmd, subjectsListCmd)
	rootCmd.AddCommand(subjectsCmd)
}
