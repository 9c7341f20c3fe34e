package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
	"github.com/kirillkom/clinical-intake/internal/core/usecase"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/asr/whisper"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/storage/minio"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/textnorm"
	"github.com/kirillkom/clinical-intake/internal/observability/metrics"
)

const ServiceName = "intake-api"

type App struct {
	Config config.Config

	Store       *Store
	Pipeline    *usecase.IntakePipeline
	HTTPMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	generator, err := newTextGenerator(cfg, NewExecutor(cfg, resilience.BackendLLM))
	if err != nil {
		store.Close()
		return nil, err
	}

	archive, err := newAudioArchive(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init audio archive: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(ServiceName)
	opts := usecase.PipelineOptions{
		Observer:            metrics.NewPipelineMetrics(ServiceName, httpMetrics.Registry()),
		FailureWriteTimeout: cfg.FailureWriteTimeout,
	}
	if archive != nil {
		opts.Archive = archive
	}

	var events *nats.Events
	if cfg.NATSURL != "" {
		events, err = OpenEvents(cfg)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		opts.Events = events
	}

	normalizer := textnorm.NewNormalizer()
	recognizer := whisper.New(cfg.ASRURL, whisper.Options{
		Model:    cfg.ASRModel,
		APIKey:   cfg.ASRAPIKey,
		Language: cfg.ASRLanguage,
	}, NewExecutor(cfg, resilience.BackendASR))
	transcriber := usecase.NewTranscriptionAdapter(recognizer, normalizer, usecase.TranscriptionOptions{
		ContentTypes: cfg.AudioContentTypes,
		MaxBytes:     cfg.AudioMaxBytes,
		Timeout:      cfg.ASRTimeout,
	})
	extractor := usecase.NewMedicalExtractor(generator, usecase.ExtractorOptions{
		NotStated:    cfg.NotStatedSentinel,
		Timeout:      cfg.ExtractionTimeout,
		MaxTextChars: cfg.ExtractionMaxChars,
	})
	pipeline := usecase.NewIntakePipeline(store, normalizer, transcriber, extractor, opts)

	return &App{
		Config:      cfg,
		Store:       store,
		Pipeline:    pipeline,
		HTTPMetrics: httpMetrics,

		closeFn: func() {
			if events != nil {
				events.Close()
			}
			store.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewExecutor builds the executor of one backend. RESILIENCE_* values, when set,
// replace the backend's own retry settings.
func NewExecutor(cfg config.Config, backend resilience.Backend) *resilience.Executor {
	policy := resilience.PolicyFor(backend).Override(
		cfg.ResilienceRetryMaxAttempts,
		cfg.ResilienceRetryInitialBackoff,
		cfg.ResilienceRetryMaxBackoff,
	)
	policy.BreakerEnabled = cfg.ResilienceBreakerEnabled
	return resilience.NewExecutor(policy)
}

func OpenEvents(cfg config.Config) (*nats.Events, error) {
	if cfg.NATSURL == "" {
		return nil, errors.New("NATS_URL is not set")
	}
	return nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: NewExecutor(cfg, resilience.BackendEvents),
	})
}

func newTextGenerator(cfg config.Config, executor *resilience.Executor) (ports.TextGenerator, error) {
	switch cfg.LLMProvider {
	case "", "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, executor), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for LLM_PROVIDER=gemini")
		}
		return gemini.New(cfg.GeminiURL, cfg.GeminiAPIKey, cfg.GeminiModel, executor), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// newAudioArchive returns nil when archiving is disabled.
func newAudioArchive(ctx context.Context, cfg config.Config) (ports.AudioArchive, error) {
	switch cfg.AudioArchive {
	case "", "none":
		return nil, nil
	case "localfs":
		return localfs.New(cfg.StoragePath)
	case "minio":
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Region:    cfg.MinIORegion,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown AUDIO_ARCHIVE %q", cfg.AudioArchive)
	}
}
