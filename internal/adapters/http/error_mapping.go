package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrEmptyInput),
		domain.IsKind(err, domain.ErrUnsupportedFormat),
		domain.IsKind(err, domain.ErrPayloadTooLarge),
		domain.IsKind(err, domain.ErrSchemaValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTranscriptionBackend),
		domain.IsKind(err, domain.ErrExtractionBackend):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateID),
		domain.IsKind(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a pipeline error. msg, when known, identifies the stored FAILED record.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg *domain.Message) {
	status := mapErrorToHTTPStatus(err)
	body := errorResponse{
		Error: err.Error(),
		Kind:  domain.KindOf(err),
	}
	if msg != nil {
		body.MessageID = msg.ID
		body.Status = string(msg.Status)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"kind", body.Kind,
			"message_id", body.MessageID,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

func writeRequestError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: "invalid_request"})
}
