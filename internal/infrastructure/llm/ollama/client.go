package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/clinical-intake/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// GenerateJSON asks the model for a JSON answer using Ollama's constrained json format.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	out := strings.TrimSpace(response.Response)
	if out == "" {
		return "", errors.New("ollama generate returned an empty response")
	}
	return out, nil
}
