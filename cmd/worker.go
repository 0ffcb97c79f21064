package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/job-aggregator/internal/metrics"
	"github.com/spigell/job-aggregator/internal/queue"
	"github.com/spigell/job-aggregator/internal/store"
	"github.com/spigell/job-aggregator/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued scoring runs until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Bool("requeue-inflight", false, "push jobs left unacked by a previous worker back to the queue before consuming (redis only)")
	workerCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")

	viper.BindPFlag("metrics.addr", workerCmd.Flags().Lookup("metrics-addr"))
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, settings, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Fail fast on a bad database before consuming anything.
	st, err := openStore(ctx, settings, logger)
	if err != nil {
		return err
	}
	st.Close()

	q, err := queue.Open(settings, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	requeue, _ := cmd.Flags().GetBool("requeue-inflight")

	w := worker.New(worker.Config{
		Queue: q,
		OpenStore: func(ctx context.Context) (*store.Store, error) {
			return store.Open(ctx, settings, logger)
		},
		Assessor:        newAssessor(ctx, settings, logger),
		Metrics:         metrics.New(),
		Logger:          logger,
		RequeueInFlight: requeue,
		MetricsAddr:     settings.Metrics.Addr,
	})

	return w.Run(ctx)
}
