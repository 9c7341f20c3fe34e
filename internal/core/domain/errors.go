package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput           = errors.New("empty input")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrTranscriptionBackend = errors.New("transcription backend failure")
	ErrSchemaValidation     = errors.New("schema validation failed")
	ErrExtractionBackend    = errors.New("extraction backend failure")
	ErrDuplicateID          = errors.New("duplicate id")
	ErrNotFound             = errors.New("message not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTemporary            = errors.New("temporary failure")
)

// kindTags lists the stable tags in match order. Backend kinds come before
// ErrTemporary so a retryable backend failure is still reported as a backend failure.
var kindTags = []struct {
	kind error
	tag  string
}{
	{ErrEmptyInput, "empty_input"},
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrPayloadTooLarge, "payload_too_large"},
	{ErrTranscriptionBackend, "transcription_backend"},
	{ErrSchemaValidation, "schema_validation"},
	{ErrExtractionBackend, "extraction_backend"},
	{ErrDuplicateID, "duplicate_id"},
	{ErrNotFound, "not_found"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrTemporary, "temporary"},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf returns the stable tag of the first known kind found in err's chain.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindTags {
		if errors.Is(err, k.kind) {
			return k.tag
		}
	}
	return "internal"
}

// FailureDetail renders the error_detail value stored on failed messages.
func FailureDetail(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err) + ": " + err.Error()
}
