package ports

import (
	"context"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

// TextInput is a text-only request. MessageID is optional; an empty value gets a generated id.
type TextInput struct {
	MessageID string
	Text      string
}

// AudioInput is an uploaded audio clip awaiting transcription.
type AudioInput struct {
	MessageID   string
	Filename    string
	ContentType string
	Data        []byte
}

// IntakePipeline is the inbound contract for the message-processing pipeline.
type IntakePipeline interface {
	ProcessText(ctx context.Context, in TextInput) (*domain.Message, error)
	ProcessAudio(ctx context.Context, in AudioInput) (*domain.Message, error)
	ProcessAndExtract(ctx context.Context, in TextInput) (*domain.Message, error)
	ExtractMessage(ctx context.Context, id string) (*domain.Message, error)
}

// MessageReader is the inbound read model for stored messages.
type MessageReader interface {
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
}
