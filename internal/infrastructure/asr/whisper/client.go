package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kirillkom/clinical-intake/internal/infrastructure/resilience"
)

// Client talks to an OpenAI-compatible /v1/audio/transcriptions endpoint
// (whisper.cpp server, faster-whisper-server, OpenAI).
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	language   string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Model    string
	APIKey   string
	Language string
}

func New(baseURL string, opts Options, executor *resilience.Executor) *Client {
	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     opts.APIKey,
		language:   opts.Language,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		executor:   executor,
	}
}

func (c *Client) Recognize(ctx context.Context, audio []byte, contentType, filename string) (string, error) {
	body, formType, err := c.buildForm(audio, contentType, filename)
	if err != nil {
		return "", err
	}

	var response struct {
		Text string `json:"text"`
	}
	err = c.executor.Execute(ctx, "whisper.transcribe", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create transcribe request: %w", err)
		}
		req.Header.Set("Content-Type", formType)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("whisper transcribe request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("whisper", "transcribe", resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return fmt.Errorf("decode transcribe response: %w", err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("whisper transcribe", err)
	}
	return strings.TrimSpace(response.Text), nil
}

func (c *Client) buildForm(audio []byte, contentType, filename string) ([]byte, string, error) {
	if filename == "" {
		filename = "audio"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	fields := [][2]string{{"model", c.model}, {"response_format", "json"}}
	if c.language != "" {
		fields = append(fields, [2]string{"language", c.language})
	}
	for _, field := range fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", field[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
