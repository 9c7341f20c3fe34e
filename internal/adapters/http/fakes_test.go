package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

type pipelineFake struct {
	processText       func(context.Context, ports.TextInput) (*domain.Message, error)
	processAudio      func(context.Context, ports.AudioInput) (*domain.Message, error)
	processAndExtract func(context.Context, ports.TextInput) (*domain.Message, error)
	extractMessage    func(context.Context, string) (*domain.Message, error)
	getMessage        func(context.Context, string) (*domain.Message, error)
}

var errNotConfigured = errors.New("fake not configured")

func (f *pipelineFake) ProcessText(ctx context.Context, in ports.TextInput) (*domain.Message, error) {
	if f.processText == nil {
		return nil, errNotConfigured
	}
	return f.processText(ctx, in)
}

func (f *pipelineFake) ProcessAudio(ctx context.Context, in ports.AudioInput) (*domain.Message, error) {
	if f.processAudio == nil {
		return nil, errNotConfigured
	}
	return f.processAudio(ctx, in)
}

func (f *pipelineFake) ProcessAndExtract(ctx context.Context, in ports.TextInput) (*domain.Message, error) {
	if f.processAndExtract == nil {
		return nil, errNotConfigured
	}
	return f.processAndExtract(ctx, in)
}

func (f *pipelineFake) ExtractMessage(ctx context.Context, id string) (*domain.Message, error) {
	if f.extractMessage == nil {
		return nil, errNotConfigured
	}
	return f.extractMessage(ctx, id)
}

func (f *pipelineFake) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if f.getMessage == nil {
		return nil, errNotConfigured
	}
	return f.getMessage(ctx, id)
}

type pingFake struct {
	err error
}

func (f pingFake) Ping(context.Context) error { return f.err }

func newTestHandler(cfg config.Config, pipeline *pipelineFake) http.Handler {
	if pipeline == nil {
		pipeline = &pipelineFake{}
	}
	return NewRouter(cfg, pipeline, pingFake{}).Handler()
}

func testMessage(id string, status domain.MessageStatus) *domain.Message {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	return &domain.Message{
		ID:         id,
		SourceType: domain.SourceText,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
