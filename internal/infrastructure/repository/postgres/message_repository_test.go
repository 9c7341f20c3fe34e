package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

var messageColumnNames = []string{
	"id", "source_type", "raw_input", "normalized_text", "extraction", "status", "error_detail", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*MessageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewMessageRepository(db)
	fixed := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	return repo, mock, func() { _ = db.Close() }
}

func TestCreateReturnsDuplicateIDWhenRowExists(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("m-1", "text", "hello", "", "received", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Create(context.Background(), &domain.Message{ID: "m-1", SourceType: domain.SourceText, RawInput: "hello"})
	if !domain.IsKind(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateGeneratesIDWhenAbsent(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "audio", "audio/wav; 4 bytes; file=a.wav", "", "received", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.Create(context.Background(), &domain.Message{SourceType: domain.SourceAudio, RawInput: "audio/wav; 4 bytes; file=a.wav"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, source_type, raw_input").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(messageColumnNames))

	_, err := repo.Get(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDecodesExtraction(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	extraction, _ := json.Marshal(domain.MedicalExtraction{Symptoms: "fever, headache", Treatment: domain.DefaultNotStated})
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, source_type, raw_input").
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(messageColumnNames).
			AddRow("m-1", "text", "raw", "fever and headache", extraction, "extracted", "", now, now))

	msg, err := repo.Get(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if msg.Status != domain.StatusExtracted || msg.Extraction == nil || msg.Extraction.Symptoms != "fever, headache" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestUpdateAppliesTransitionInsideTransaction(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, source_type, raw_input.*FOR UPDATE").
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(messageColumnNames).
			AddRow("m-1", "text", "  fever ", "", nil, "received", "", created, created))
	mock.ExpectExec("UPDATE messages").
		WithArgs("m-1", "  fever ", "fever", nil, "normalized", "", repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Update(context.Background(), "m-1", domain.StatusUpdate(domain.StatusNormalized).WithNormalizedText("fever"))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateRejectsTerminalMessage(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(messageColumnNames).
			AddRow("m-1", "text", "raw", "", nil, "failed", "empty_input: blank", now, now))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), "m-1", domain.StatusUpdate(domain.StatusNormalized).WithNormalizedText("x"))
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateReturnsNotFoundForMissingRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(messageColumnNames))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), "missing", domain.StatusUpdate(domain.StatusFailed).WithErrorDetail("x"))
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListAppliesStatusFilterAndDefaultLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("FROM messages").
		WithArgs("normalized", defaultListLimit).
		WillReturnRows(sqlmock.NewRows(messageColumnNames).
			AddRow("m-2", "text", "b", "b", nil, "normalized", "", now, now).
			AddRow("m-1", "text", "a", "a", nil, "normalized", "", now, now))

	msgs, err := repo.List(context.Background(), domain.MessageFilter{Status: domain.StatusNormalized})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m-2" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
