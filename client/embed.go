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

const stageEmbed = "embed"

// EmbedClient calls a text-embedding service over HTTP. ModelVersion is the
// configured model name, stored with every index entry so model upgrades
// can invalidate stale vectors.
type EmbedClient struct {
	opts       Options
	httpClient *http.Client
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewEmbedClient creates an embedding adapter.
func NewEmbedClient(opts Options) *EmbedClient {
	opts.normalize()
	return &EmbedClient{
		opts:       opts,
		httpClient: &http.Client{},
	}
}

// Embed returns one vector per input text, in input order.
func (c *EmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.opts.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var vectors [][]float32
	err = withRetry(ctx, stageEmbed, &c.opts, func(ctx context.Context) error {
		url := c.opts.BaseURL + "/v1/embeddings"
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
			return httpError(stageEmbed, resp.StatusCode, respBody)
		}

		var parsed embedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if len(parsed.Embeddings) != len(texts) {
			return fmt.Errorf("service returned %d embeddings for %d inputs", len(parsed.Embeddings), len(texts))
		}
		vectors = parsed.Embeddings
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.opts.Logger.Debug("embedding call completed",
		logging.F("model", c.opts.Model),
		logging.F("inputs", len(texts)))
	return vectors, nil
}

// ModelVersion identifies the embedding model behind this client.
func (c *EmbedClient) ModelVersion() string {
	return c.opts.Model
}
