package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/attritioncast/internal/config"
	"github.com/rewired-gh/attritioncast/internal/logger"
	"github.com/rewired-gh/attritioncast/internal/metrics"
	"github.com/rewired-gh/attritioncast/internal/pipeline"
	"github.com/rewired-gh/attritioncast/internal/storage"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
	registry   *prometheus.Registry
	out        io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	rootCmd := &cobra.Command{
		Use:           "attritioncast",
		Short:         "Forecast employee attrition by category",
		Long:          `Normalizes raw attrition records onto a monthly calendar, forecasts each category, and reconciles breakdowns bottom-up or top-down.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to YAML config file (defaults plus environment when empty)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Dotenv file loaded before configuration")

	rootCmd.AddCommand(a.forecastCmd())
	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.runsCmd())
	rootCmd.AddCommand(a.modelsCmd())

	return rootCmd
}

func (a *app) setup() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if a.configPath != "" {
		logger.Debug("Configuration loaded from %s", a.configPath)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return nil
}

// openStore returns the run archive, or nil when it is disabled.
func (a *app) openStore() (*storage.Storage, error) {
	if !a.cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := storage.New(a.cfg.Storage.MaxRuns, a.cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.Storage) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

func (a *app) newPipeline(store *storage.Storage) (*pipeline.Pipeline, error) {
	engine, err := pipeline.NewEngine(a.cfg.Forecast, a.cfg.Split, metrics.New(a.registry))
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}
	return pipeline.New(engine, store), nil
}
