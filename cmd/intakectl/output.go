package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

func writeMessage(w io.Writer, msg *domain.Message, format string) error {
	switch format {
	case "", "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(msg); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(msg)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTable(w io.Writer, msgs []domain.Message) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tSTATUS\tUPDATED\tDETAIL")
	for _, msg := range msgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			msg.ID,
			msg.SourceType,
			msg.Status,
			msg.UpdatedAt.UTC().Format(time.RFC3339),
			truncate(msg.ErrorDetail, 60),
		)
	}
	return tw.Flush()
}

func writeEvent(w io.Writer, event ports.StatusEvent) error {
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", event.At.UTC().Format(time.RFC3339), event.ID, event.SourceType, event.Status)
	return err
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
