package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"lms-assistant-backend/internal/config"
	"lms-assistant-backend/internal/logger"
)

// ErrEmbeddingUnavailable signals that the embedding backend cannot serve
// requests. Callers degrade per their own contract: the retriever returns no
// results, ingestion reports the document as failed.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

// Embedder maps text to fixed-dimension vectors. Implementations are safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Available() bool
	Dimension() int
}

// GeminiEmbedder generates embeddings with Google Generative AI
// (text-embedding-004 by default). The client is created once; availability
// is decided at construction, not inferred from key contents at call time.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	timeout   time.Duration
	available bool
}

func NewGeminiEmbedder(cfg *config.Config) (*GeminiEmbedder, error) {
	e := &GeminiEmbedder{
		model:     cfg.GoogleEmbeddingsModel,
		dimension: cfg.VectorDim,
		timeout:   time.Duration(cfg.EmbeddingTimeout) * time.Second,
	}

	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, embedding backend unavailable")
		return e, nil
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		logger.Error("failed to create Gemini client for embeddings", "error", err)
		return e, nil
	}

	e.client = client
	e.available = true
	return e, nil
}

func (e *GeminiEmbedder) Available() bool { return e.available }
func (e *GeminiEmbedder) Dimension() int  { return e.dimension }

// Embed embeds all texts in one batch call. The result always has one vector
// per input; a partially failed batch is reported as a whole failure.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.available {
		return nil, ErrEmbeddingUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbeddingUnavailable, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrEmbeddingUnavailable, i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *GeminiEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GeminiEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// HashEmbedder is a deterministic offline embedder: tokens are hashed into
// dimension buckets and the vector is L2-normalised. Retrieval quality is
// poor but ranking is stable, which is what tests and keyless deployments
// need.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Available() bool { return true }
func (e *HashEmbedder) Dimension() int  { return e.dimension }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = e.embed(t)
	}
	return vectors, nil
}

func (e *HashEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
