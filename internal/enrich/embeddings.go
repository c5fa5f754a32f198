package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_ytminer/internal/engine"
)

// Embeddings via an OpenAI-compatible /embeddings endpoint.

const embeddingBatchSize = 64

type embeddingsStage struct {
	log *slog.Logger
}

func (s *embeddingsStage) Name() string { return "embeddings" }

type embeddingsReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResp struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// embedBatch POSTs one batch of texts and returns vectors in input order.
func embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	engine.IncrEmbeddingRequests()
	cfg := engine.Cfg

	body, err := json.Marshal(embeddingsReq{Model: cfg.EmbeddingsModel, Input: texts})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSuffix(cfg.EmbeddingsEndpoint, "/") + "/embeddings"
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.EmbeddingsAPIKey != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.EmbeddingsAPIKey)
		}
		return cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("embeddings HTTP %d: %s", resp.StatusCode, snippet)
	}

	var parsed embeddingsResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (s *embeddingsStage) Run(ctx context.Context, a Assets) (*Output, error) {
	var records []any
	for asset, items := range itemsByAsset(a) {
		for start := 0; start < len(items); start += embeddingBatchSize {
			end := min(start+embeddingBatchSize, len(items))
			batch := items[start:end]

			texts := make([]string, len(batch))
			for i, it := range batch {
				texts[i] = it.Text
			}
			vectors, err := embedBatch(ctx, texts)
			if err != nil {
				return nil, fmt.Errorf("embed %s batch at %d: %w", asset, start, err)
			}
			for i, it := range batch {
				records = append(records, engine.EmbeddingRecord{
					VideoID:   a.VideoID,
					AssetType: asset,
					ItemID:    it.ID,
					Model:     engine.Cfg.EmbeddingsModel,
					Vector:    vectors[i],
				})
			}
		}
	}
	return &Output{File: "embeddings.jsonl", Records: records}, nil
}
