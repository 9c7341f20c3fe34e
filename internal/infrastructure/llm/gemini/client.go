package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/clinical-intake/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, model string, executor *resilience.Executor) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))

	var response generateResponse
	err = c.executor.Execute(ctx, "gemini.generate", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create generate request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("gemini generate request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("gemini", "generate", resp)
		}
		response = generateResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return fmt.Errorf("decode generate response: %w", err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("gemini generate", err)
	}

	return responseText(response)
}

func responseText(response generateResponse) (string, error) {
	if reason := response.PromptFeedback.BlockReason; reason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", reason)
	}
	if len(response.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	var b strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini returned an empty candidate (finish reason %q)", response.Candidates[0].FinishReason)
	}
	return out, nil
}
