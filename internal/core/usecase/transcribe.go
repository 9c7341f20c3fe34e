package usecase

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

// DefaultAudioContentTypes lists the audio encodings accepted when no explicit list is configured.
var DefaultAudioContentTypes = []string{
	"audio/wav", "audio/x-wav", "audio/wave",
	"audio/mpeg", "audio/mp3",
	"audio/flac", "audio/x-flac",
	"audio/mp4", "audio/x-m4a", "audio/m4a",
	"audio/ogg", "audio/webm",
}

var audioTypeByExtension = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
}

type TranscriptionOptions struct {
	ContentTypes []string
	MaxBytes     int64
	Timeout      time.Duration
}

type TranscriptionAdapter struct {
	recognizer ports.SpeechRecognizer
	normalizer ports.TextNormalizer
	supported  map[string]struct{}
	maxBytes   int64
	timeout    time.Duration
}

func NewTranscriptionAdapter(
	recognizer ports.SpeechRecognizer,
	normalizer ports.TextNormalizer,
	opts TranscriptionOptions,
) *TranscriptionAdapter {
	types := opts.ContentTypes
	if len(types) == 0 {
		types = DefaultAudioContentTypes
	}
	supported := make(map[string]struct{}, len(types))
	for _, ct := range types {
		supported[strings.ToLower(strings.TrimSpace(ct))] = struct{}{}
	}
	return &TranscriptionAdapter{
		recognizer: recognizer,
		normalizer: normalizer,
		supported:  supported,
		maxBytes:   opts.MaxBytes,
		timeout:    opts.Timeout,
	}
}

// ResolveAudioContentType strips media-type parameters and folds case. When the declared
// type is missing or generic, the filename extension decides.
func ResolveAudioContentType(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mediaType
	} else if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct == "" || ct == "application/octet-stream" {
		if inferred, ok := audioTypeByExtension[strings.ToLower(filepath.Ext(filename))]; ok {
			return inferred
		}
	}
	return ct
}

func (a *TranscriptionAdapter) Transcribe(ctx context.Context, audio []byte, contentType, filename string) (string, error) {
	ct := ResolveAudioContentType(contentType, filename)
	if _, ok := a.supported[ct]; !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "transcribe audio", fmt.Errorf("content type %q", contentType))
	}
	if len(audio) == 0 {
		return "", domain.WrapError(domain.ErrEmptyInput, "transcribe audio", errors.New("audio payload is empty"))
	}
	if a.maxBytes > 0 && int64(len(audio)) > a.maxBytes {
		return "", domain.WrapError(
			domain.ErrPayloadTooLarge,
			"transcribe audio",
			fmt.Errorf("audio payload is %d bytes, limit %d", len(audio), a.maxBytes),
		)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	raw, err := a.recognizer.Recognize(ctx, audio, ct, filename)
	if err != nil {
		return "", domain.WrapError(domain.ErrTranscriptionBackend, "recognize speech", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", domain.WrapError(domain.ErrTranscriptionBackend, "recognize speech", errors.New("backend returned an empty transcript"))
	}

	text, err := a.normalizer.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("normalize transcript: %w", err)
	}
	return text, nil
}
