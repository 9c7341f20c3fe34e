package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	schemaLockID     = int64(2026101801)
)

const messageColumns = `id, source_type, raw_input, normalized_text, extraction, status, error_detail, created_at, updated_at`

type MessageRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// OpenDB opens a pgx-backed pool and waits for the server with exponential backoff.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.RetryNotify(
		func() error { return db.PingContext(ctx) },
		backoff.WithContext(policy, ctx),
		func(err error, wait time.Duration) {
			slog.Warn("db_ping_retry", "driver", "postgres", "backoff_ms", wait.Milliseconds(), "error", err)
		},
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *MessageRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api and intakectl startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	raw_input TEXT NOT NULL,
	normalized_text TEXT NOT NULL DEFAULT '',
	extraction JSONB,
	status TEXT NOT NULL,
	error_detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Create inserts msg as RECEIVED and returns its id, generating one when msg.ID is empty.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (string, error) {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.now()
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO messages (`+messageColumns+`)
VALUES ($1,$2,$3,$4,NULL,$5,'',$6,$7)
ON CONFLICT (id) DO NOTHING
`,
		id, string(msg.SourceType), msg.RawInput, msg.NormalizedText, string(domain.StatusReceived), createdAt, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert message rows affected: %w", err)
	}
	if affected == 0 {
		return "", domain.WrapError(domain.ErrDuplicateID, "create message", fmt.Errorf("id %s already exists", id))
	}
	return id, nil
}

// Update locks the row, validates upd against the lifecycle rules and writes the result.
func (r *MessageRepository) Update(ctx context.Context, id string, upd domain.MessageUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "update message", fmt.Errorf("id %s", id))
		}
		return fmt.Errorf("load message for update: %w", err)
	}

	if err := msg.Apply(upd, r.now()); err != nil {
		return err
	}

	extraction, err := marshalExtraction(msg.Extraction)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE messages
SET raw_input = $2, normalized_text = $3, extraction = $4, status = $5, error_detail = $6, updated_at = $7
WHERE id = $1
`, msg.ID, msg.RawInput, msg.NormalizedText, extraction, string(msg.Status), msg.ErrorDetail, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get message", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return msg, nil
}

// List returns the newest messages first, optionally filtered by status.
func (r *MessageRepository) List(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2
`, string(filter.Status), listLimit(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var sourceType, status string
	var extractionRaw []byte

	err := row.Scan(
		&msg.ID, &sourceType, &msg.RawInput, &msg.NormalizedText, &extractionRaw,
		&status, &msg.ErrorDetail, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.SourceType = domain.SourceType(sourceType)
	msg.Status = domain.MessageStatus(status)
	if len(extractionRaw) > 0 {
		var extraction domain.MedicalExtraction
		if err := json.Unmarshal(extractionRaw, &extraction); err != nil {
			return nil, fmt.Errorf("unmarshal extraction: %w", err)
		}
		msg.Extraction = &extraction
	}
	return &msg, nil
}

func marshalExtraction(extraction *domain.MedicalExtraction) (any, error) {
	if extraction == nil {
		return nil, nil
	}
	raw, err := json.Marshal(extraction)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction: %w", err)
	}
	return raw, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
