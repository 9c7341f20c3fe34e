package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

// MessageStore persists message state. Update enforces the lifecycle rules of domain.Message.Apply.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) (string, error)
	Update(ctx context.Context, id string, upd domain.MessageUpdate) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	List(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error)
	Ping(ctx context.Context) error
}

// TextNormalizer cleans raw text into its canonical form.
type TextNormalizer interface {
	Normalize(text string) (string, error)
}

// SpeechRecognizer is the speech-to-text backend.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, audio []byte, contentType, filename string) (string, error)
}

// TextGenerator is the generative-text backend. The response is expected to be a JSON object.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Transcriber turns an audio clip into normalized text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType, filename string) (string, error)
}

// Extractor turns normalized text into a structured medical record.
type Extractor interface {
	Extract(ctx context.Context, text string) (domain.MedicalExtraction, error)
}

// AudioArchive keeps a copy of uploaded audio and returns a reference to it.
type AudioArchive interface {
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error)
}

// StatusEvent is published after every persisted status change.
type StatusEvent struct {
	ID         string               `json:"id"`
	Status     domain.MessageStatus `json:"status"`
	SourceType domain.SourceType    `json:"source_type"`
	At         time.Time            `json:"at"`
}

// EventPublisher fans out message lifecycle events.
type EventPublisher interface {
	PublishStatus(ctx context.Context, event StatusEvent) error
}

// PipelineObserver receives pipeline outcomes for metrics.
type PipelineObserver interface {
	ObserveRun(entry, status string)
	ObserveStage(stage, status string, duration time.Duration)
}
