package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

const (
	EntryText    = "text"
	EntryAudio   = "audio"
	EntryExtract = "extract"
	EntryResume  = "resume"

	defaultFailureWriteTimeout = 5 * time.Second
)

type PipelineOptions struct {
	Archive             ports.AudioArchive
	Events              ports.EventPublisher
	Observer            ports.PipelineObserver
	Logger              *slog.Logger
	FailureWriteTimeout time.Duration
	Now                 func() time.Time
}

// IntakePipeline drives a message through normalize/transcribe/extract and records
// every status change in the store.
type IntakePipeline struct {
	store       ports.MessageStore
	normalizer  ports.TextNormalizer
	transcriber ports.Transcriber
	extractor   ports.Extractor

	archive     ports.AudioArchive
	events      ports.EventPublisher
	observer    ports.PipelineObserver
	logger      *slog.Logger
	failTimeout time.Duration
	now         func() time.Time
}

func NewIntakePipeline(
	store ports.MessageStore,
	normalizer ports.TextNormalizer,
	transcriber ports.Transcriber,
	extractor ports.Extractor,
	opts PipelineOptions,
) *IntakePipeline {
	uc := &IntakePipeline{
		store:       store,
		normalizer:  normalizer,
		transcriber: transcriber,
		extractor:   extractor,
		archive:     opts.Archive,
		events:      opts.Events,
		observer:    opts.Observer,
		logger:      opts.Logger,
		failTimeout: opts.FailureWriteTimeout,
		now:         opts.Now,
	}
	if uc.observer == nil {
		uc.observer = noopObserver{}
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	if uc.failTimeout <= 0 {
		uc.failTimeout = defaultFailureWriteTimeout
	}
	if uc.now == nil {
		uc.now = func() time.Time { return time.Now().UTC() }
	}
	return uc
}

// ProcessText normalizes free text and stores it as NORMALIZED.
// On failure the returned message, when non-nil, reflects the persisted FAILED state.
func (uc *IntakePipeline) ProcessText(ctx context.Context, in ports.TextInput) (*domain.Message, error) {
	msg, err := uc.create(ctx, EntryText, in.MessageID, domain.SourceText, in.Text)
	if err != nil {
		return nil, err
	}
	if err := uc.normalizeText(ctx, EntryText, msg, in.Text); err != nil {
		return uc.fail(ctx, EntryText, msg, err)
	}
	uc.observer.ObserveRun(EntryText, string(msg.Status))
	return msg, nil
}

// ProcessAudio transcribes an uploaded clip and stores the transcript as TRANSCRIBED.
func (uc *IntakePipeline) ProcessAudio(ctx context.Context, in ports.AudioInput) (*domain.Message, error) {
	descriptor := audioDescriptor(in)
	msg, err := uc.create(ctx, EntryAudio, in.MessageID, domain.SourceAudio, descriptor)
	if err != nil {
		return nil, err
	}

	var text string
	err = uc.stage(ctx, EntryAudio, "transcribe", msg, func(ctx context.Context) error {
		var stageErr error
		text, stageErr = uc.transcriber.Transcribe(ctx, in.Data, in.ContentType, in.Filename)
		return stageErr
	})
	if err != nil {
		return uc.fail(ctx, EntryAudio, msg, err)
	}

	upd := domain.StatusUpdate(domain.StatusTranscribed).WithNormalizedText(text)
	if ref := uc.archiveAudio(ctx, msg.ID, in); ref != "" {
		upd = upd.WithRawInput(descriptor + "; ref=" + ref)
	}
	if err := uc.advance(ctx, msg, upd); err != nil {
		return uc.fail(ctx, EntryAudio, msg, err)
	}
	uc.observer.ObserveRun(EntryAudio, string(msg.Status))
	return msg, nil
}

// ProcessAndExtract normalizes text, stores it as NORMALIZED, then extracts and stores EXTRACTED.
func (uc *IntakePipeline) ProcessAndExtract(ctx context.Context, in ports.TextInput) (*domain.Message, error) {
	msg, err := uc.create(ctx, EntryExtract, in.MessageID, domain.SourceText, in.Text)
	if err != nil {
		return nil, err
	}
	if err := uc.normalizeText(ctx, EntryExtract, msg, in.Text); err != nil {
		return uc.fail(ctx, EntryExtract, msg, err)
	}
	if err := uc.extract(ctx, EntryExtract, msg); err != nil {
		return uc.fail(ctx, EntryExtract, msg, err)
	}
	uc.observer.ObserveRun(EntryExtract, string(msg.Status))
	return msg, nil
}

// ExtractMessage resumes a stored NORMALIZED or TRANSCRIBED message.
func (uc *IntakePipeline) ExtractMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := uc.store.Get(ctx, id)
	if err != nil {
		uc.observer.ObserveRun(EntryResume, "rejected")
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg.Status != domain.StatusNormalized && msg.Status != domain.StatusTranscribed {
		uc.observer.ObserveRun(EntryResume, "rejected")
		return nil, domain.WrapError(
			domain.ErrInvalidTransition,
			"resume extraction",
			fmt.Errorf("message %s is %s, want %s or %s", msg.ID, msg.Status, domain.StatusNormalized, domain.StatusTranscribed),
		)
	}
	if err := uc.extract(ctx, EntryResume, msg); err != nil {
		return uc.fail(ctx, EntryResume, msg, err)
	}
	uc.observer.ObserveRun(EntryResume, string(msg.Status))
	return msg, nil
}

func (uc *IntakePipeline) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := uc.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (uc *IntakePipeline) create(ctx context.Context, entry, id string, source domain.SourceType, raw string) (*domain.Message, error) {
	now := uc.now()
	msg := &domain.Message{
		ID:         strings.TrimSpace(id),
		SourceType: source,
		RawInput:   raw,
		Status:     domain.StatusReceived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	assigned, err := uc.store.Create(ctx, msg)
	if err != nil {
		uc.observer.ObserveRun(entry, "rejected")
		return nil, fmt.Errorf("create message: %w", err)
	}
	msg.ID = assigned
	uc.publish(ctx, msg)
	return msg, nil
}

func (uc *IntakePipeline) normalizeText(ctx context.Context, entry string, msg *domain.Message, text string) error {
	var normalized string
	err := uc.stage(ctx, entry, "normalize", msg, func(context.Context) error {
		var stageErr error
		normalized, stageErr = uc.normalizer.Normalize(text)
		return stageErr
	})
	if err != nil {
		return err
	}
	return uc.advance(ctx, msg, domain.StatusUpdate(domain.StatusNormalized).WithNormalizedText(normalized))
}

func (uc *IntakePipeline) extract(ctx context.Context, entry string, msg *domain.Message) error {
	var extraction domain.MedicalExtraction
	err := uc.stage(ctx, entry, "extract", msg, func(ctx context.Context) error {
		var stageErr error
		extraction, stageErr = uc.extractor.Extract(ctx, msg.NormalizedText)
		return stageErr
	})
	if err != nil {
		return err
	}
	return uc.advance(ctx, msg, domain.StatusUpdate(domain.StatusExtracted).WithExtraction(extraction))
}

func (uc *IntakePipeline) stage(ctx context.Context, entry, stage string, msg *domain.Message, fn func(context.Context) error) error {
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)

	status := "ok"
	level := slog.LevelInfo
	attrs := []any{
		"message_id", msg.ID,
		"entry", entry,
		"stage", stage,
		"duration_ms", elapsed.Milliseconds(),
	}
	if err != nil {
		status = "error"
		level = slog.LevelWarn
		attrs = append(attrs, "kind", domain.KindOf(err), "error", err.Error())
	}
	uc.observer.ObserveStage(stage, status, elapsed)
	uc.logger.Log(ctx, level, "pipeline_stage", append(attrs, "status", status)...)
	return err
}

func (uc *IntakePipeline) advance(ctx context.Context, msg *domain.Message, upd domain.MessageUpdate) error {
	if err := uc.store.Update(ctx, msg.ID, upd); err != nil {
		return fmt.Errorf("persist status=%s: %w", *upd.Status, err)
	}
	if err := msg.Apply(upd, uc.now()); err != nil {
		return err
	}
	uc.publish(ctx, msg)
	return nil
}

// fail records FAILED on a context detached from the caller, so a disconnect still leaves
// an inspectable record. A failed write is joined onto processErr, never replacing it.
func (uc *IntakePipeline) fail(ctx context.Context, entry string, msg *domain.Message, processErr error) (*domain.Message, error) {
	uc.observer.ObserveRun(entry, string(domain.StatusFailed))
	if msg.Status.IsTerminal() {
		return msg, processErr
	}

	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.failTimeout)
	defer cancel()

	upd := domain.StatusUpdate(domain.StatusFailed).WithErrorDetail(domain.FailureDetail(processErr))
	if failErr := uc.store.Update(failCtx, msg.ID, upd); failErr != nil {
		uc.logger.Error("mark_failed_error", "message_id", msg.ID, "entry", entry, "error", failErr.Error())
		return msg, fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
	}
	if err := msg.Apply(upd, uc.now()); err != nil {
		return msg, errors.Join(processErr, err)
	}
	uc.publish(failCtx, msg)
	return msg, processErr
}

func (uc *IntakePipeline) archiveAudio(ctx context.Context, id string, in ports.AudioInput) string {
	if uc.archive == nil {
		return ""
	}
	key := archiveKey(id, in.Filename)
	ref, err := uc.archive.Save(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), ResolveAudioContentType(in.ContentType, in.Filename))
	if err != nil {
		uc.logger.Warn("audio_archive_error", "message_id", id, "key", key, "error", err.Error())
		return ""
	}
	return ref
}

func (uc *IntakePipeline) publish(ctx context.Context, msg *domain.Message) {
	if uc.events == nil {
		return
	}
	event := ports.StatusEvent{
		ID:         msg.ID,
		Status:     msg.Status,
		SourceType: msg.SourceType,
		At:         msg.UpdatedAt,
	}
	if err := uc.events.PublishStatus(ctx, event); err != nil {
		uc.logger.Warn("status_event_publish_error", "message_id", msg.ID, "status", msg.Status, "error", err.Error())
	}
}

func audioDescriptor(in ports.AudioInput) string {
	ct := ResolveAudioContentType(in.ContentType, in.Filename)
	if ct == "" {
		ct = "unknown"
	}
	return fmt.Sprintf("%s; %d bytes; file=%s", ct, len(in.Data), in.Filename)
}

type noopObserver struct{}

func (noopObserver) ObserveRun(string, string)                  {}
func (noopObserver) ObserveStage(string, string, time.Duration) {}
