package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "test-model",
		Dimensions: 4,
		Logger:     zap.NewNop(),
	})
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		resp := embeddingResponse{Object: "list", Model: "test-model"}
		resp.Data = append(resp.Data, embeddingData{Object: "embedding", Embedding: expectedVec})
		resp.Usage.PromptTokens = 7
		resp.Usage.TotalTokens = 7

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	result, err := emb.Embed(context.Background(), "blue summer dress")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_OrderedByIndex(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		// Out-of-order indices: the client must reorder by Index.
		resp.Data = append(resp.Data,
			embeddingData{Object: "embedding", Embedding: []float32{2, 2}, Index: 1},
			embeddingData{Object: "embedding", Embedding: []float32{1, 1}, Index: 0},
		)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	result, err := emb.BatchEmbed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}
	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	if result.Embeddings[0][0] != 1 || result.Embeddings[1][0] != 2 {
		t.Errorf("embeddings not ordered by index: %v", result.Embeddings)
	}
}

func TestEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		resp.Data = append(resp.Data, embeddingData{Object: "embedding", Embedding: []float32{1}})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for vector count mismatch")
	}
}

func TestEmbedder_BatchEmbed_IndexOutOfRange(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		resp.Data = append(resp.Data, embeddingData{Object: "embedding", Embedding: []float32{1}, Index: 2})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := emb.BatchEmbed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error for out-of-range embedding index")
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("error = %v, want wrapped %v", err, domain.ErrEmbeddingProviderError)
	}
}

func TestEmbedder_BatchEmbed_DuplicateIndexLeavesGap(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		// Both vectors claim index 0, so input 1 has no vector.
		resp.Data = append(resp.Data,
			embeddingData{Object: "embedding", Embedding: []float32{1}, Index: 0},
			embeddingData{Object: "embedding", Embedding: []float32{2}, Index: 0},
		)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for missing vector slot")
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("error = %v, want wrapped %v", err, domain.ErrEmbeddingProviderError)
	}
}

func TestEmbedder_EmbedAPIError(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail": "model overloaded"}`))
	})

	_, err := emb.Embed(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error from API failure")
	}
}
