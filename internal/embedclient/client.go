// Package embedclient talks to an OpenAI-compatible embeddings endpoint,
// caching the detected vector dimensionality for the lifetime of the process.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chirino/memory-mcp/internal/memerr"
)

// Client embeds text against a single configured model.
type Client struct {
	url    string
	model  string
	apiKey string
	dims   int // requested dimensionality, 0 = unconstrained

	httpClient *http.Client

	once         sync.Once
	detectedDims int
	detectErr    error
}

// New returns a Client for the given endpoint configuration.
func New(url, model, apiKey string, dims int) *Client {
	return &Client{
		url:    url,
		model:  model,
		apiKey: apiKey,
		dims:   dims,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// DetectDimension probes the endpoint once and caches the result for the
// lifetime of the Client. If a specific dimensionality was requested, it
// validates the response matches.
func (c *Client) DetectDimension(ctx context.Context) (int, error) {
	c.once.Do(func() {
		vec, err := c.embed(ctx, "dimension probe")
		if err != nil {
			c.detectErr = err
			return
		}
		if c.dims != 0 && len(vec) != c.dims {
			c.detectErr = fmt.Errorf("%w: requested %d, endpoint returned %d for model %q",
				memerr.ErrDimensionMismatch, c.dims, len(vec), c.model)
			return
		}
		c.detectedDims = len(vec)
	})
	return c.detectedDims, c.detectErr
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text)
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text, Dimensions: c.dims})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", memerr.ErrEmbeddingEndpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", memerr.ErrEmbeddingEndpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrEmbeddingEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: model %q: HTTP %d", memerr.ErrEmbeddingEndpoint, c.model, resp.StatusCode)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", memerr.ErrEmbeddingEndpoint, err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response for model %q", memerr.ErrEmbeddingEndpoint, c.model)
	}
	return decoded.Data[0].Embedding, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// TableName returns the memory_<D> table name for the client's detected
// dimensionality. DetectDimension must have succeeded first.
func (c *Client) TableName() string {
	return fmt.Sprintf("memory_%d", c.detectedDims)
}
