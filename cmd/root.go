package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/ai/gemini"
	"github.com/spigell/job-aggregator/internal/config"
	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/secrets"
	"github.com/spigell/job-aggregator/internal/store"
)

const (
	app = "job-aggregator"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "job-aggregator ingests remote job postings and scores them against candidate profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute executes the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is job-aggregator.yaml in current directory, optional)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if err := config.LoadDotEnv(config.DotEnvFiles...); err != nil {
		log.Fatal(err)
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless it was given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

// setup builds the logger and the resolved settings every command starts from.
func setup() (*zap.Logger, *config.Settings, error) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating a logger")
	}

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return logger, nil, err
	}

	logger.Debug("starting with settings",
		zap.String("db_driver", settings.DBDriver),
		zap.String("db_path", settings.DBPath),
		zap.String("queue_backend", settings.Queue.Backend),
		zap.String("queue_name", settings.Queue.Name),
		zap.Bool("ai_enabled", settings.AI.Enabled),
	)

	return logger, settings, nil
}

// openStore connects to the configured database and applies pending migrations.
func openStore(ctx context.Context, settings *config.Settings, logger *zap.Logger) (*store.Store, error) {
	s, err := store.Open(ctx, settings, logger)
	if err != nil {
		return nil, err
	}

	applied, err := s.Migrate(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if applied > 0 {
		logger.Info("applied migrations", zap.Int("count", applied))
	}

	return s, nil
}

// newAssessor returns nil when AI assessment is disabled or cannot be set up.
func newAssessor(ctx context.Context, settings *config.Settings, logger *zap.Logger) ai.Assessor {
	if !settings.AI.Enabled {
		return nil
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: settings.AI.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		logger.Warn("skipping AI assessment", zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key-file or GEMINI_API_KEY"),
		)
		return nil
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", settings.AI.Gemini.Model),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, settings.AI.Gemini.Model, genLogger)
	if err != nil {
		logger.Warn("skipping AI assessment", zap.Error(err))
		return nil
	}

	return gemini.NewAssessor(generator, genLogger, settings.AI.MinimumFitScore, settings.AI.Gemini.MaxLogLength)
}
