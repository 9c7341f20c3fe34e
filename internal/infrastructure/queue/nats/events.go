package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/clinical-intake/internal/core/ports"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/resilience"
)

// Events publishes message lifecycle events as JSON on a single subject.
type Events struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string, options Options) (*Events, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("clinical-intake"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Events{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (e *Events) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}

func (e *Events) PublishStatus(ctx context.Context, event ports.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	err = e.executor.Execute(ctx, "nats.publish", func(context.Context) error {
		if err := e.conn.Publish(e.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	return wrapTemporaryIfNeeded(err)
}

// Subscribe delivers events to handler until ctx is done, then drains the subscription.
func (e *Events) Subscribe(ctx context.Context, handler func(context.Context, ports.StatusEvent) error) error {
	sub, err := e.conn.Subscribe(e.subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeStatusEvent(msg.Data)
		if err != nil {
			slog.Warn("status_event_decode_error", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, event); err != nil {
			slog.Warn("status_event_handler_error", "message_id", event.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := e.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := e.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func decodeStatusEvent(data []byte) (ports.StatusEvent, error) {
	var event ports.StatusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ports.StatusEvent{}, fmt.Errorf("decode status event: %w", err)
	}
	if event.ID == "" || !event.Status.Valid() {
		return ports.StatusEvent{}, fmt.Errorf("decode status event: missing id or unknown status %q", event.Status)
	}
	return event, nil
}
