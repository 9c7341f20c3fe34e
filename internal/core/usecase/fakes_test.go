package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

type storeFake struct {
	mu            sync.Mutex
	messages      map[string]*domain.Message
	updates       []domain.MessageUpdate
	seq           int
	createErr     error
	updateErr     error
	failUpdateErr error
	failCtxErr    error
}

func newStoreFake() *storeFake {
	return &storeFake{messages: map[string]*domain.Message{}}
}

func (f *storeFake) Create(_ context.Context, msg *domain.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := msg.ID
	if id == "" {
		f.seq++
		id = fmt.Sprintf("msg-%d", f.seq)
	}
	if _, ok := f.messages[id]; ok {
		return "", domain.WrapError(domain.ErrDuplicateID, "create message", fmt.Errorf("id %s", id))
	}
	stored := *msg
	stored.ID = id
	f.messages[id] = &stored
	return id, nil
}

func (f *storeFake) Update(ctx context.Context, id string, upd domain.MessageUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)
	current, ok := f.messages[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update message", fmt.Errorf("id %s", id))
	}
	if upd.Status != nil && *upd.Status == domain.StatusFailed {
		f.failCtxErr = ctx.Err()
		if f.failUpdateErr != nil {
			return f.failUpdateErr
		}
	} else if f.updateErr != nil {
		return f.updateErr
	}
	next := *current
	if err := next.Apply(upd, time.Now().UTC()); err != nil {
		return err
	}
	f.messages[id] = &next
	return nil
}

func (f *storeFake) Get(_ context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get message", fmt.Errorf("id %s", id))
	}
	copied := *msg
	return &copied, nil
}

func (f *storeFake) List(context.Context, domain.MessageFilter) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Message, 0, len(f.messages))
	for _, msg := range f.messages {
		out = append(out, *msg)
	}
	return out, nil
}

func (f *storeFake) Ping(context.Context) error { return nil }

func (f *storeFake) stored(id string) domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.messages[id]
}

// trimNormalizer keeps the tests independent of the production cleaning rules.
type trimNormalizer struct {
	calls int
}

func (n *trimNormalizer) Normalize(text string) (string, error) {
	n.calls++
	out := strings.Join(strings.Fields(text), " ")
	if out == "" {
		return "", domain.WrapError(domain.ErrEmptyInput, "normalize text", errors.New("blank"))
	}
	return out, nil
}

type recognizerFake struct {
	text        string
	err         error
	calls       int
	contentType string
	hasDeadline bool
}

func (f *recognizerFake) Recognize(ctx context.Context, _ []byte, contentType, _ string) (string, error) {
	f.calls++
	f.contentType = contentType
	_, f.hasDeadline = ctx.Deadline()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type generatorFake struct {
	responses []string
	err       error
	prompts   []string
	onCall    func()
}

func (f *generatorFake) GenerateJSON(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

type archiveFake struct {
	keys []string
	data []string
	err  error
}

func (f *archiveFake) Save(_ context.Context, key string, data io.Reader, _ int64, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	f.data = append(f.data, string(raw))
	return "archive://" + key, nil
}

type eventsFake struct {
	events []ports.StatusEvent
}

func (f *eventsFake) PublishStatus(_ context.Context, event ports.StatusEvent) error {
	f.events = append(f.events, event)
	return nil
}

type observerFake struct {
	runs   []string
	stages []string
}

func (f *observerFake) ObserveRun(entry, status string) {
	f.runs = append(f.runs, entry+"/"+status)
}

func (f *observerFake) ObserveStage(stage, status string, _ time.Duration) {
	f.stages = append(f.stages, stage+"/"+status)
}

// extractionJSON renders a complete record with the sentinel for every key not in values.
func extractionJSON(values map[string]string) string {
	parts := make([]string, 0, len(domain.ExtractionFields))
	for _, field := range domain.ExtractionFields {
		value, ok := values[field.Key]
		if !ok {
			value = domain.DefaultNotStated
		}
		parts = append(parts, fmt.Sprintf("%q: %q", field.Key, value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
