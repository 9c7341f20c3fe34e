package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

// DefaultMaxTextChars bounds the text sent for extraction, in characters.
const DefaultMaxTextChars = 10000

type ExtractorOptions struct {
	NotStated    string
	Timeout      time.Duration
	MaxTextChars int
}

type MedicalExtractor struct {
	generator ports.TextGenerator
	notStated string
	timeout   time.Duration
	maxChars  int
}

func NewMedicalExtractor(generator ports.TextGenerator, opts ExtractorOptions) *MedicalExtractor {
	notStated := opts.NotStated
	if strings.TrimSpace(notStated) == "" {
		notStated = domain.DefaultNotStated
	}
	maxChars := opts.MaxTextChars
	if maxChars <= 0 {
		maxChars = DefaultMaxTextChars
	}
	return &MedicalExtractor{
		generator: generator,
		notStated: notStated,
		timeout:   opts.Timeout,
		maxChars:  maxChars,
	}
}

func (e *MedicalExtractor) Extract(ctx context.Context, text string) (domain.MedicalExtraction, error) {
	if strings.TrimSpace(text) == "" {
		return domain.MedicalExtraction{}, domain.WrapError(domain.ErrEmptyInput, "extract medical data", errors.New("text is empty"))
	}
	// Text over the limit is rejected, never truncated.
	if n := utf8.RuneCountInString(text); n > e.maxChars {
		return domain.MedicalExtraction{}, domain.WrapError(
			domain.ErrPayloadTooLarge,
			"extract medical data",
			fmt.Errorf("text is %d characters, limit %d", n, e.maxChars),
		)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.generator.GenerateJSON(ctx, buildExtractionPrompt(text, e.notStated))
	if err != nil {
		return domain.MedicalExtraction{}, domain.WrapError(domain.ErrExtractionBackend, "generate extraction", err)
	}

	extraction, err := domain.DecodeExtraction([]byte(raw))
	if err != nil && errors.Is(err, domain.ErrMalformedExtraction) {
		if candidate, ok := embeddedJSONObject(raw); ok {
			extraction, err = domain.DecodeExtraction([]byte(candidate))
		}
	}
	if err != nil {
		return domain.MedicalExtraction{}, fmt.Errorf("parse extraction: %w", err)
	}
	return extraction, nil
}

// embeddedJSONObject slices the outermost {...} block out of surrounding prose or code fences.
func embeddedJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := raw[start : end+1]
	if candidate == strings.TrimSpace(raw) {
		return "", false
	}
	return candidate, true
}
