package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

type textRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

type promptRequest struct {
	Prompt    string `json:"prompt"`
	MessageID string `json:"message_id"`
}

type normalizedResponse struct {
	MessageID      string               `json:"message_id"`
	Status         domain.MessageStatus `json:"status"`
	NormalizedText string               `json:"normalized_text"`
}

func (rt *Router) validateProcessText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}

	msg, err := rt.pipeline.ProcessText(r.Context(), ports.TextInput{MessageID: req.MessageID, Text: req.Text})
	if err != nil {
		writeError(w, r, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, normalizedResponse{
		MessageID:      msg.ID,
		Status:         msg.Status,
		NormalizedText: msg.NormalizedText,
	})
}

func (rt *Router) validateProcessAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.audioMaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, r, domain.WrapError(domain.ErrPayloadTooLarge, "read upload", err), nil)
			return
		}
		writeRequestError(w, http.StatusBadRequest, "multipart form with field 'file' is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeRequestError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrPayloadTooLarge, "read upload", err), nil)
		return
	}

	msg, err := rt.pipeline.ProcessAudio(r.Context(), ports.AudioInput{
		MessageID:   r.FormValue("message_id"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(w, r, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, normalizedResponse{
		MessageID:      msg.ID,
		Status:         msg.Status,
		NormalizedText: msg.NormalizedText,
	})
}

func (rt *Router) generateText(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}

	msg, err := rt.pipeline.ProcessAndExtract(r.Context(), ports.TextInput{MessageID: req.MessageID, Text: req.Prompt})
	if err != nil {
		writeError(w, r, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, newExtractionResponse(msg))
}

func (rt *Router) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := rt.pipeline.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (rt *Router) extractMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := rt.pipeline.ExtractMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, rt.textMaxBytes()))
	if err := decoder.Decode(dst); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, r, domain.WrapError(domain.ErrPayloadTooLarge, "read request body", err), nil)
			return false
		}
		writeRequestError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

type extractionResponse struct {
	MessageID  string               `json:"message_id"`
	Status     domain.MessageStatus `json:"status"`
	Extraction map[string]string    `json:"extraction"`
}

func newExtractionResponse(msg *domain.Message) extractionResponse {
	out := extractionResponse{MessageID: msg.ID, Status: msg.Status}
	if msg.Extraction != nil {
		out.Extraction = msg.Extraction.Fields()
	}
	return out
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
