package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/connector/remoteok"
	"github.com/spigell/job-aggregator/internal/ingest"
	"github.com/spigell/job-aggregator/internal/queue"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch postings from a source into the ledger",
	Long: `Fetch postings from a source, deduplicate them and record every item in the ledger.
When --profile resolves to a candidate profile, a scoring run is created and queued for the worker.

Exit codes: 0 on success (record-level failures included), 1 on usage errors, 2 when the run failed.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("source", "s", remoteok.Source, "source connector to fetch from")
	ingestCmd.Flags().IntP("limit", "l", 0, "max records to fetch (overrides max-fetch-per-connector, capped at 100)")
	ingestCmd.Flags().StringP("profile", "p", "", "candidate profile id or label to bind the run to")
}

func connectors() *connector.Registry {
	r := connector.NewRegistry()
	r.Register(remoteok.Source, remoteok.Factory)
	return r
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, settings, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	source, _ := cmd.Flags().GetString("source")
	profile, _ := cmd.Flags().GetString("profile")

	var limit *int
	if cmd.Flags().Changed("limit") {
		l, _ := cmd.Flags().GetInt("limit")
		limit = &l
	}

	conn, err := connectors().New(source, settings, logger)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, settings, logger)
	if err != nil {
		return &exitError{code: ingest.ExitFatal, err: err}
	}
	defer st.Close()

	opts := []ingest.Option{}
	if profile != "" {
		q, err := queue.Open(settings, logger)
		if err != nil {
			logger.Warn("queue is not available, scoring will not be enqueued", zap.Error(err))
		} else {
			defer q.Close()
			opts = append(opts, ingest.WithQueue(q))
		}
	}

	res := ingest.New(st, settings, logger, opts...).Run(ctx, conn, ingest.Options{
		Limit:   limit,
		Profile: profile,
	})
	if res.ExitCode != ingest.ExitOK {
		return &exitError{code: res.ExitCode, err: errors.Newf("ingestion run %d failed", res.RunID)}
	}

	return nil
}
