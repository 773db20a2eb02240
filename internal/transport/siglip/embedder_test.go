package siglip

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewEmbedder(&Config{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Dimensions: 4,
		Logger:     zap.NewNop(),
	})
}

func TestEmbedImage(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/image" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ImageURL != "https://cdn.example.com/p.jpg" {
			t.Errorf("unexpected image url: %q", req.ImageURL)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0, 1, 0, 0}})
	})

	vec, err := emb.EmbedImage(context.Background(), "https://cdn.example.com/p.jpg")
	if err != nil {
		t.Fatalf("EmbedImage failed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 dimensions, got %d", len(vec))
	}
}

func TestEmbedImageText_RoutesToTextEncoder(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/text" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.5, 0.5, 0.5, 0.5}})
	})

	vec, err := emb.EmbedImageText(context.Background(), "red leather boots")
	if err != nil {
		t.Fatalf("EmbedImageText failed: %v", err)
	}

	// 0.5-vectors have norm 1 already
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector not L2-normalized: norm^2 = %v", norm)
	}
}

func TestEmbed_NormalizesVector(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{3, 0, 4, 0}})
	})

	vec, err := emb.EmbedImage(context.Background(), "https://cdn.example.com/p.jpg")
	if err != nil {
		t.Fatalf("EmbedImage failed: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector not L2-normalized: norm^2 = %v", norm)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2}})
	})

	if _, err := emb.EmbedImage(context.Background(), "https://cdn.example.com/p.jpg"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbed_ServerError(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := emb.EmbedImage(context.Background(), "https://cdn.example.com/p.jpg"); err == nil {
		t.Fatal("expected error from server failure")
	}
}
