// Package cmd defines the CLI commands for the linkvault executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/app"
	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/config"
	"github.com/JakeFAU/linkvault/internal/ledger"
	"github.com/JakeFAU/linkvault/internal/logging"
	"github.com/JakeFAU/linkvault/internal/pipeline"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the service container interface commands use. Tests inject a
// mock through newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Clock() archive.Clock
	Store() archive.Store
	Ledger() *ledger.Ledger
	Orchestrator(pipeline.Config) *pipeline.Orchestrator
}

// newApp is the application factory, a variable so tests can replace it.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkvault",
		Short: "Incremental archiver for a curated reading list.",
		Long: `linkvault keeps a durable local archive of every URL on a curated
link list. Runs are incremental: already-archived pages are skipped, failing
pages retry with a cooldown, and pages that keep failing are retired.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches the working directory)")

	cmd.AddCommand(newArchiveCmd())
	cmd.AddCommand(newFailuresCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT/SIGTERM cancel the run context so
// in-flight work finishes cleanly before exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
