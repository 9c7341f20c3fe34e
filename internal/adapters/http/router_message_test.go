package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/core/domain"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
)

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestValidateProcessTextReturnsNormalizedText(t *testing.T) {
	var got ports.TextInput
	handler := newTestHandler(config.Config{}, &pipelineFake{
		processText: func(_ context.Context, in ports.TextInput) (*domain.Message, error) {
			got = in
			msg := testMessage("m-1", domain.StatusNormalized)
			msg.NormalizedText = "Hello! How are you?"
			return msg, nil
		},
	})

	res := postJSON(t, handler, "/message/validate-process-text", map[string]string{"text": "Hello! 😊 How are you?", "message_id": "m-1"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	if body["normalized_text"] != "Hello! How are you?" || body["message_id"] != "m-1" || body["status"] != "normalized" {
		t.Fatalf("unexpected response: %+v", body)
	}
	if got.MessageID != "m-1" || got.Text != "Hello! 😊 How are you?" {
		t.Fatalf("unexpected pipeline input: %+v", got)
	}
}

func TestValidateProcessTextMapsEmptyInputTo400WithMessageID(t *testing.T) {
	handler := newTestHandler(config.Config{}, &pipelineFake{
		processText: func(context.Context, ports.TextInput) (*domain.Message, error) {
			msg := testMessage("m-2", domain.StatusFailed)
			return msg, domain.WrapError(domain.ErrEmptyInput, "normalize", errors.New("no printable characters"))
		},
	})

	res := postJSON(t, handler, "/message/validate-process-text", map[string]string{"text": "   "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["kind"] != "empty_input" || body["message_id"] != "m-2" || body["status"] != "failed" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestValidateProcessTextRejectsInvalidJSON(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/message/validate-process-text", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["kind"] != "invalid_request" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestValidateProcessTextCapsRequestBody(t *testing.T) {
	handler := newTestHandler(config.Config{TextMaxBytes: 16}, nil)

	res := postJSON(t, handler, "/message/validate-process-text", map[string]string{"text": strings.Repeat("a", 64)})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["kind"] != "payload_too_large" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestValidateProcessTextRejectsOtherMethods(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/message/validate-process-text", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code == http.StatusOK {
		t.Fatalf("expected non-200 for GET on a POST route")
	}
}

func audioUpload(t *testing.T, contentType string, data []byte, messageID string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="visit.wav"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if messageID != "" {
		if err := writer.WriteField("message_id", messageID); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestValidateProcessAudioPassesUploadToPipeline(t *testing.T) {
	var got ports.AudioInput
	handler := newTestHandler(config.Config{}, &pipelineFake{
		processAudio: func(_ context.Context, in ports.AudioInput) (*domain.Message, error) {
			got = in
			msg := testMessage(in.MessageID, domain.StatusTranscribed)
			msg.SourceType = domain.SourceAudio
			msg.NormalizedText = "patient reports fever"
			return msg, nil
		},
	})

	body, contentType := audioUpload(t, "audio/wav", []byte("RIFF....WAVE"), "a-1")
	req := httptest.NewRequest(http.MethodPost, "/message/validate-process-audio", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if got.Filename != "visit.wav" || got.ContentType != "audio/wav" || string(got.Data) != "RIFF....WAVE" || got.MessageID != "a-1" {
		t.Fatalf("unexpected pipeline input: %+v", got)
	}
	if resp := decodeBody(t, res); resp["normalized_text"] != "patient reports fever" || resp["status"] != "transcribed" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestValidateProcessAudioRequiresFilePart(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/message/validate-process-audio", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestValidateProcessAudioMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"unsupported", domain.WrapError(domain.ErrUnsupportedFormat, "transcribe", errors.New(`content type "audio/xyz"`)), http.StatusBadRequest, "unsupported_format"},
		{"too large", domain.WrapError(domain.ErrPayloadTooLarge, "transcribe", errors.New("26214401 bytes")), http.StatusBadRequest, "payload_too_large"},
		{"backend", domain.WrapError(domain.ErrTranscriptionBackend, "recognize", errors.New("503")), http.StatusBadGateway, "transcription_backend"},
		{"duplicate", domain.WrapError(domain.ErrDuplicateID, "create", errors.New("a-1")), http.StatusConflict, "duplicate_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, &pipelineFake{
				processAudio: func(context.Context, ports.AudioInput) (*domain.Message, error) {
					return nil, tc.err
				},
			})
			body, contentType := audioUpload(t, "audio/xyz", []byte("data"), "")
			req := httptest.NewRequest(http.MethodPost, "/message/validate-process-audio", body)
			req.Header.Set("Content-Type", contentType)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			if resp := decodeBody(t, res); resp["kind"] != tc.kind {
				t.Fatalf("expected kind %s, got %+v", tc.kind, resp)
			}
		})
	}
}

func TestGenerateTextNestsExtraction(t *testing.T) {
	handler := newTestHandler(config.Config{}, &pipelineFake{
		processAndExtract: func(_ context.Context, in ports.TextInput) (*domain.Message, error) {
			if in.Text != "fever and headache for two days" {
				t.Errorf("unexpected prompt %q", in.Text)
			}
			msg := testMessage("g-1", domain.StatusExtracted)
			msg.Extraction = &domain.MedicalExtraction{Symptoms: "fever, headache", Diagnosis: domain.DefaultNotStated}
			return msg, nil
		},
	})

	res := postJSON(t, handler, "/message/generate-text", map[string]string{"prompt": "fever and headache for two days"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	if body["message_id"] != "g-1" || body["status"] != string(domain.StatusExtracted) || len(body) != 3 {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	extraction, ok := body["extraction"].(map[string]any)
	if !ok {
		t.Fatalf("expected extraction object, got %T", body["extraction"])
	}
	if extraction["symptoms"] != "fever, headache" || extraction["diagnosis"] != domain.DefaultNotStated {
		t.Fatalf("unexpected extraction: %+v", extraction)
	}
	if len(extraction) != len(domain.ExtractionFields) {
		t.Fatalf("expected exactly the schema fields, got %d keys", len(extraction))
	}
	for _, field := range domain.ExtractionFields {
		if _, ok := extraction[field.Key]; !ok {
			t.Fatalf("missing schema field %q", field.Key)
		}
	}
	for _, key := range []string{"message_id", "status"} {
		if _, ok := extraction[key]; ok {
			t.Fatalf("envelope key %q leaked into extraction", key)
		}
	}
}

func TestGenerateTextMapsExtractionErrors(t *testing.T) {
	cases := map[int]error{
		http.StatusBadRequest: domain.WrapError(domain.ErrSchemaValidation, "decode extraction", errors.New("missing fields: symptoms")),
		http.StatusBadGateway: domain.WrapError(domain.ErrExtractionBackend, "generate", context.DeadlineExceeded),
	}
	for status, err := range cases {
		handler := newTestHandler(config.Config{}, &pipelineFake{
			processAndExtract: func(context.Context, ports.TextInput) (*domain.Message, error) {
				return testMessage("g-2", domain.StatusFailed), err
			},
		})
		res := postJSON(t, handler, "/message/generate-text", map[string]string{"prompt": "x"})
		if res.Code != status {
			t.Fatalf("expected %d for %v, got %d", status, err, res.Code)
		}
	}
}

func TestGetMessageReturns404ForNotFound(t *testing.T) {
	handler := newTestHandler(config.Config{}, &pipelineFake{
		getMessage: func(_ context.Context, id string) (*domain.Message, error) {
			return nil, domain.WrapError(domain.ErrNotFound, "get", errors.New("id="+id))
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/message/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetMessageReturnsStoredMessage(t *testing.T) {
	handler := newTestHandler(config.Config{}, &pipelineFake{
		getMessage: func(_ context.Context, id string) (*domain.Message, error) {
			return testMessage(id, domain.StatusNormalized), nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/message/m-9", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["id"] != "m-9" || body["status"] != "normalized" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestExtractMessageMapsInvalidTransitionTo409(t *testing.T) {
	var gotID string
	handler := newTestHandler(config.Config{}, &pipelineFake{
		extractMessage: func(_ context.Context, id string) (*domain.Message, error) {
			gotID = id
			return nil, domain.WrapError(domain.ErrInvalidTransition, "resume extraction", errors.New("message is extracted"))
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/message/m-3/extract", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	if gotID != "m-3" {
		t.Fatalf("expected path id m-3, got %q", gotID)
	}
}
