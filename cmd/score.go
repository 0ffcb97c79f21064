package cmd

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/spigell/job-aggregator/internal/ledger"
	"github.com/spigell/job-aggregator/internal/metrics"
	"github.com/spigell/job-aggregator/internal/scoring"
	"github.com/spigell/job-aggregator/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run a scoring run synchronously",
	Long: `Score every stored posting against the profile of a scoring run.
Without --run-id, pick one of the runs that are still pending.`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().Int64P("run-id", "r", 0, "scoring run id")
}

func runScore(cmd *cobra.Command, _ []string) error {
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

	runID, _ := cmd.Flags().GetInt64("run-id")
	if runID == 0 {
		runID, err = pickScoringRun(ctx, st)
		if err != nil {
			return err
		}
	}

	opts := []scoring.Option{scoring.WithMetrics(metrics.New())}
	if assessor := newAssessor(ctx, settings, logger); assessor != nil {
		opts = append(opts, scoring.WithAssessor(assessor))
	}

	return scoring.NewService(st, logger, opts...).ScoreRun(ctx, runID)
}

func pickScoringRun(ctx context.Context, st *store.Store) (int64, error) {
	runs, err := st.ListScoringRuns(ctx, ledger.RunStarted)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, errors.New("no pending scoring runs, pass --run-id to rescore a finished one")
	}

	items := make([]string, 0, len(runs))
	for _, run := range runs {
		items = append(items, fmt.Sprintf("#%d profile %d, started %s", run.ID, run.ProfileID, run.StartedAt.Format("2006-01-02 15:04")))
	}

	prompt := promptui.Select{
		Label: "Choose a scoring run and press ENTER",
		Items: items,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		return 0, err
	}

	return runs[idx].ID, nil
}
