package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/api"
	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/linklist"
	"github.com/JakeFAU/linkvault/internal/pipeline"
)

// newArchiveCmd creates the 'archive' subcommand, which executes one
// incremental pass over the link list.
func newArchiveCmd() *cobra.Command {
	var (
		linksPath     string
		refreshBefore string
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Run one incremental archive pass over the link list",
		Long: `Reads the curated link list and archives every URL that is not
already archived, not cooling down after a recent failure, and not retired
as permanently failed. With --refresh-before, pages archived before the
cutoff are re-scraped even though a copy exists.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runArchiveCommand(cmd, linksPath, refreshBefore)
		},
	}

	cmd.Flags().StringVar(&linksPath, "links", "", "link list path (overrides links.path)")
	cmd.Flags().StringVar(&refreshBefore, "refresh-before", "", "re-scrape pages archived before this cutoff (RFC3339 or YYYY-MM-DD)")
	return cmd
}

func runArchiveCommand(cmd *cobra.Command, linksPath, refreshBefore string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	if linksPath == "" {
		linksPath = cfg.Links.Path
	}
	links, err := linklist.Load(linksPath)
	if err != nil {
		return &archive.ConfigError{Reason: fmt.Sprintf("load link list %s: %v", linksPath, err)}
	}

	cutoff, err := parseRefreshCutoff(refreshBefore)
	if err != nil {
		return err
	}

	orchestrator := appInstance.Orchestrator(pipeline.Config{
		Concurrency:   cfg.Pipeline.Concurrency,
		FetchTimeout:  cfg.FetchTimeout(),
		AssetTimeout:  cfg.AssetTimeout(),
		RefreshBefore: cutoff,
		RenderPDF:     cfg.Headless.RenderPDF,
	})

	if cfg.Server.Enabled {
		shutdown := startOperatorServer(appInstance, orchestrator, cfg.Server.Port)
		defer shutdown()
	}

	summary, runErr := orchestrator.Run(cmd.Context(), links)

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		logger.Warn("write run report", zap.Error(err))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Info("run interrupted, partial report above")
			return nil
		}
		return fmt.Errorf("archive run: %w", runErr)
	}
	return nil
}

// parseRefreshCutoff accepts an RFC3339 timestamp or a bare date.
func parseRefreshCutoff(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, &archive.ConfigError{Reason: fmt.Sprintf("invalid --refresh-before value %q", raw)}
}

// startOperatorServer serves metrics and the live report for the duration
// of the run. The returned function shuts it down.
func startOperatorServer(appInstance App, orchestrator *pipeline.Orchestrator, port int) func() {
	logger := appInstance.Logger()
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewServer(orchestrator.Report(), appInstance.Ledger(), appInstance.Clock(), logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("operator server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("operator server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("operator server shutdown", zap.Error(err))
		}
	}
}
