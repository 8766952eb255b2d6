package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const voyageAPIURL = "https://api.voyageai.com/v1/embeddings"

// VoyageClient implements Provider against the Voyage AI API.
type VoyageClient struct {
	apiKey string
	model  string
	client *http.Client
}

// NewVoyageClient creates a client. The per-request timeout covers a
// whole batch.
func NewVoyageClient(apiKey, model string) *VoyageClient {
	return &VoyageClient{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageResponse struct {
	Data []voyageEmbedding `json:"data"`
}

type voyageEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// Embed implements Provider.
func (c *VoyageClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(voyageRequest{
		Input:     texts,
		Model:     c.model,
		InputType: "document",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voyageAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voyage API status %d: %s", resp.StatusCode, string(respBody))
	}

	var out voyageResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	// Responses are index-tagged; reorder to match the input.
	vectors := make([][]float32, len(texts))
	for _, emb := range out.Data {
		if emb.Index >= 0 && emb.Index < len(vectors) {
			vectors[emb.Index] = emb.Embedding
		}
	}
	return vectors, nil
}

// Name implements Provider.
func (c *VoyageClient) Name() string { return "voyage" }

// Model implements Provider.
func (c *VoyageClient) Model() string { return c.model }

// Dimensions implements Provider.
func (c *VoyageClient) Dimensions() int {
	switch c.model {
	case "voyage-4-lite", "voyage-3-lite":
		return 512
	default:
		return 1024
	}
}
