package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spigell/job-aggregator/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger, settings, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := store.Open(ctx, settings, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		applied, err := st.Migrate(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s), %d migration(s) applied\n", st.Dialect(), applied)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
