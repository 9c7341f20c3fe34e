package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("intakectl", cfg.LogLevel))

	rootCmd := newRootCommand(cfg)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "intakectl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intakectl",
		Short: "Operate the clinical intake message store",
		Long: `intakectl inspects and exports stored intake messages, prepares the store schema,
and follows message lifecycle events. Connection settings come from the same environment
variables as the API.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCmd(cfg),
		newGetCmd(cfg),
		newListCmd(cfg),
		newExportCmd(cfg),
		newWatchCmd(cfg),
	)
	return cmd
}
