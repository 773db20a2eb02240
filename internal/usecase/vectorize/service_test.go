package vectorize

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
)

type fakeTextEmbedder struct {
	vec []float32
	err error
}

func (f *fakeTextEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: f.vec}, nil
}

type fakeVisualEmbedder struct {
	imageVec []float32
	textVec  []float32
	imageErr error
	textErr  error

	imageCalls int
	textCalls  int
}

func (f *fakeVisualEmbedder) EmbedImage(_ context.Context, _ string) ([]float32, error) {
	f.imageCalls++
	return f.imageVec, f.imageErr
}

func (f *fakeVisualEmbedder) EmbedImageText(_ context.Context, _ string) ([]float32, error) {
	f.textCalls++
	return f.textVec, f.textErr
}

func TestVectorize_TextOnlyFillsBothSpaces(t *testing.T) {
	text := &fakeTextEmbedder{vec: []float32{1, 2}}
	visual := &fakeVisualEmbedder{textVec: []float32{3, 4}}
	s := New(text, visual, zap.NewNop())

	vectors := s.Vectorize(context.Background(), domain.NewQuery("blue dress", "", "", nil, "u1", 0))

	if len(vectors) != 2 {
		t.Fatalf("expected both spaces, got %v", vectors)
	}
	if vectors[domain.SpaceText][0] != 1 {
		t.Errorf("text space = %v", vectors[domain.SpaceText])
	}
	if vectors[domain.SpaceImage][0] != 3 {
		t.Errorf("image space should come from the visual text encoder, got %v", vectors[domain.SpaceImage])
	}
	if visual.imageCalls != 0 {
		t.Errorf("no image in query, EmbedImage called %d times", visual.imageCalls)
	}
}

func TestVectorize_ImageWinsOverTextDerivedVisual(t *testing.T) {
	text := &fakeTextEmbedder{vec: []float32{1}}
	visual := &fakeVisualEmbedder{imageVec: []float32{9}, textVec: []float32{3}}
	s := New(text, visual, zap.NewNop())

	q := domain.NewQuery("something like this", "https://cdn.example/pic.jpg", "", nil, "u1", 0)
	vectors := s.Vectorize(context.Background(), q)

	if vectors[domain.SpaceImage][0] != 9 {
		t.Errorf("image space = %v, want image-derived vector", vectors[domain.SpaceImage])
	}
	if visual.textCalls != 0 {
		t.Errorf("text encoder used despite image present: %d calls", visual.textCalls)
	}
}

func TestVectorize_FailedImageFallsBackToTextEncoder(t *testing.T) {
	text := &fakeTextEmbedder{vec: []float32{1}}
	visual := &fakeVisualEmbedder{imageErr: errors.New("decode failed"), textVec: []float32{3}}
	s := New(text, visual, zap.NewNop())

	q := domain.NewQuery("something like this", "https://cdn.example/pic.jpg", "", nil, "u1", 0)
	vectors := s.Vectorize(context.Background(), q)

	if len(vectors[domain.SpaceImage]) == 0 || vectors[domain.SpaceImage][0] != 3 {
		t.Errorf("image space = %v, want text-derived fallback", vectors[domain.SpaceImage])
	}
	if visual.imageCalls != 1 || visual.textCalls != 1 {
		t.Errorf("calls image=%d text=%d, want 1/1", visual.imageCalls, visual.textCalls)
	}
}

func TestVectorize_ImageOnly(t *testing.T) {
	text := &fakeTextEmbedder{vec: []float32{1}}
	visual := &fakeVisualEmbedder{imageVec: []float32{9}}
	s := New(text, visual, zap.NewNop())

	vectors := s.Vectorize(context.Background(), domain.NewQuery("", "https://cdn.example/pic.jpg", "", nil, "u1", 0))

	if _, ok := vectors[domain.SpaceText]; ok {
		t.Error("no text in query, text space must be absent")
	}
	if vectors[domain.SpaceImage][0] != 9 {
		t.Errorf("image space = %v", vectors[domain.SpaceImage])
	}
}

func TestVectorize_FailedProviderLeavesSpaceAbsent(t *testing.T) {
	text := &fakeTextEmbedder{err: errors.New("provider down")}
	visual := &fakeVisualEmbedder{textVec: []float32{3}}
	s := New(text, visual, zap.NewNop())

	vectors := s.Vectorize(context.Background(), domain.NewQuery("blue dress", "", "", nil, "u1", 0))

	if _, ok := vectors[domain.SpaceText]; ok {
		t.Error("failed provider must leave its space absent")
	}
	if len(vectors[domain.SpaceImage]) == 0 {
		t.Error("healthy provider must still contribute")
	}
}

func TestVectorize_AllProvidersDownYieldsEmpty(t *testing.T) {
	text := &fakeTextEmbedder{err: errors.New("down")}
	visual := &fakeVisualEmbedder{textErr: errors.New("down")}
	s := New(text, visual, zap.NewNop())

	vectors := s.Vectorize(context.Background(), domain.NewQuery("blue dress", "", "", nil, "u1", 0))

	if len(vectors) != 0 {
		t.Errorf("expected empty result, got %v", vectors)
	}
}

func TestVectorize_NilVisualProvider(t *testing.T) {
	text := &fakeTextEmbedder{vec: []float32{1}}
	s := New(text, nil, zap.NewNop())

	vectors := s.Vectorize(context.Background(), domain.NewQuery("blue dress", "", "", nil, "u1", 0))

	if len(vectors) != 1 {
		t.Fatalf("expected text space only, got %v", vectors)
	}
}
