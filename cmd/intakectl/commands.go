package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/clinical-intake/internal/bootstrap"
	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/export"
)

func newMigrateCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the message table or collection indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), cfg, func(store *bootstrap.Store) error {
				if err := store.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.StoreDriver)
				return nil
			})
		},
	}
}

func newGetCmd(cfg config.Config) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one stored message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), cfg, func(store *bootstrap.Store) error {
				msg, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeMessage(cmd.OutOrStdout(), msg, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format: yaml or json")
	return cmd
}

func newListCmd(cfg config.Config) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored messages, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := messageFilter(status, limit)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), cfg, func(store *bootstrap.Store) error {
				msgs, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return writeTable(cmd.OutOrStdout(), msgs)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only messages in this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of messages")
	return cmd
}

func newExportCmd(cfg config.Config) *cobra.Command {
	var out string
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export messages and their extractions to an xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := messageFilter(status, limit)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), cfg, func(store *bootstrap.Store) error {
				msgs, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				if err := export.WriteXLSX(file, msgs); err != nil {
					_ = file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return fmt.Errorf("close %s: %w", out, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d messages to %s\n", len(msgs), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "messages.xlsx", "Destination workbook")
	cmd.Flags().StringVar(&status, "status", "", "Only messages in this status")
	cmd.Flags().IntVar(&limit, "limit", 1000, "Maximum number of messages")
	return cmd
}

func newWatchCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print message lifecycle events as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			events, err := bootstrap.OpenEvents(cfg)
			if err != nil {
				return err
			}
			defer events.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s\n", cfg.NATSSubject)
			return events.Subscribe(cmd.Context(), func(_ context.Context, event ports.StatusEvent) error {
				return writeEvent(out, event)
			})
		},
	}
}

func withStore(ctx context.Context, cfg config.Config, fn func(*bootstrap.Store) error) error {
	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func messageFilter(status string, limit int) (domain.MessageFilter, error) {
	filter := domain.MessageFilter{Status: domain.MessageStatus(status), Limit: limit}
	if status != "" && !filter.Status.Valid() {
		return domain.MessageFilter{}, fmt.Errorf("unknown status %q", status)
	}
	return filter, nil
}
