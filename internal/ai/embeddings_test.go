package ai

import (
	"context"
	"math"
	"os"
	"testing"

	"lms-assistant-backend/internal/config"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(32)

	a, err := e.EmbedOne(context.Background(), "photosynthesis converts light")
	if err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	b, _ := e.EmbedOne(context.Background(), "photosynthesis converts light")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at dimension %d", i)
		}
	}

	c, _ := e.EmbedOne(context.Background(), "mitosis divides cells")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical embeddings")
	}
}

func TestHashEmbedderNormalized(t *testing.T) {
	e := NewHashEmbedder(32)
	vec, _ := e.EmbedOne(context.Background(), "linear algebra eigenvalues")

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("vector norm = %f, want 1", math.Sqrt(norm))
	}
}

func TestHashEmbedderBatch(t *testing.T) {
	e := NewHashEmbedder(16)
	vectors, err := e.Embed(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 16 {
			t.Errorf("vector %d has dimension %d, want 16", i, len(v))
		}
	}
}

func TestGeminiEmbedderUnavailableWithoutKey(t *testing.T) {
	e, err := NewGeminiEmbedder(&config.Config{
		GoogleEmbeddingsModel: "text-embedding-004",
		VectorDim:             768,
		EmbeddingTimeout:      5,
	})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder: %v", err)
	}
	if e.Available() {
		t.Fatal("embedder must be unavailable without an API key")
	}
	if _, err := e.EmbedOne(context.Background(), "anything"); err == nil {
		t.Fatal("expected ErrEmbeddingUnavailable")
	}
}

func TestGeminiEmbedderLive(t *testing.T) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		t.Skip("GEMINI_API_KEY not set, skipping live embedding test")
	}

	e, err := NewGeminiEmbedder(&config.Config{
		GeminiAPIKey:          key,
		GoogleEmbeddingsModel: "text-embedding-004",
		VectorDim:             768,
		EmbeddingTimeout:      30,
	})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder: %v", err)
	}
	defer e.Close()

	vectors, err := e.Embed(context.Background(), []string{"photosynthesis", "mitosis"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if len(vectors[0]) == 0 {
		t.Fatal("empty embedding returned")
	}
}
