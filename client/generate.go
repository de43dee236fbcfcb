package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lecternlabs/lectern/pkg/logging"
)

const stageGenerate = "generate"

// GenerateClient calls a prompt-completion service over HTTP.
type GenerateClient struct {
	opts       Options
	httpClient *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// NewGenerateClient creates a generation adapter.
func NewGenerateClient(opts Options) *GenerateClient {
	opts.normalize()
	return &GenerateClient{
		opts:       opts,
		httpClient: &http.Client{},
	}
}

// Generate sends one prompt and returns the completion text.
func (c *GenerateClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.opts.Model,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	err = withRetry(ctx, stageGenerate, &c.opts, func(ctx context.Context) error {
		url := c.opts.BaseURL + "/v1/completions"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		setAuth(req, c.opts.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return httpError(stageGenerate, resp.StatusCode, respBody)
		}

		var parsed generateResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		text = parsed.Text
		return nil
	})
	if err != nil {
		return "", err
	}

	c.opts.Logger.Debug("generation call completed",
		logging.F("model", c.opts.Model),
		logging.F("prompt_bytes", len(prompt)),
		logging.F("completion_bytes", len(text)))
	return text, nil
}
