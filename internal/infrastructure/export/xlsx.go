package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

const SheetName = "Messages"

var baseColumns = []string{"id", "source_type", "status", "created_at", "updated_at", "normalized_text", "error_detail"}

// Header returns the column names: message columns followed by every extraction field.
func Header() []string {
	out := make([]string, 0, len(baseColumns)+len(domain.ExtractionFields))
	out = append(out, baseColumns...)
	for _, field := range domain.ExtractionFields {
		out = append(out, field.Key)
	}
	return out
}

// WriteXLSX writes one row per message. Extraction cells stay empty for messages without an extraction.
func WriteXLSX(w io.Writer, msgs []domain.Message) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := Header()
	if err := writeRow(f, 1, toAny(header)); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, msg := range msgs {
		if err := writeRow(f, i+2, messageRow(msg)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func messageRow(msg domain.Message) []any {
	row := []any{
		msg.ID,
		string(msg.SourceType),
		string(msg.Status),
		msg.CreatedAt.UTC().Format(time.RFC3339),
		msg.UpdatedAt.UTC().Format(time.RFC3339),
		msg.NormalizedText,
		msg.ErrorDetail,
	}
	var fields map[string]string
	if msg.Extraction != nil {
		fields = msg.Extraction.Fields()
	}
	for _, field := range domain.ExtractionFields {
		row = append(row, fields[field.Key])
	}
	return row
}

func writeRow(f *excelize.File, rowIdx int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return fmt.Errorf("row %d cell: %w", rowIdx, err)
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", rowIdx, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
