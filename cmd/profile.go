package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/profiles"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage candidate profiles",
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update profiles from a YAML file (matched by label)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileImport,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidate profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

func init() {
	profileCmd.AddCommand(profileImportCmd, profileListCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	logger, settings, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "open profile file")
	}
	defer f.Close()

	parsed, err := profiles.Parse(f)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, p := range parsed {
		id, err := st.SaveProfile(ctx, p)
		if err != nil {
			return err
		}
		logger.Info("profile saved", zap.Int64("profile_id", id), zap.String("label", *p.Label), zap.Int("skills", len(p.Skills)))
	}

	return nil
}

func runProfileList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	logger, settings, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListProfiles(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tROLE\tSKILLS")
	for _, p := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, value(p.Label), value(p.Role), strings.Join(p.Skills, ", "))
	}
	return w.Flush()
}

func value(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
