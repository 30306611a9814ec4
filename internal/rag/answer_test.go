package rag

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"lms-assistant-backend/internal/ai"
	"lms-assistant-backend/models"
)

// scriptedGenerator returns a fixed answer or a fixed error.
type scriptedGenerator struct {
	answer string
	err    error

	lastSystemPrompt string
	lastUserMessage  string
}

func (g *scriptedGenerator) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	g.lastSystemPrompt = systemPrompt
	g.lastUserMessage = userMessage
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *scriptedGenerator) Available() bool { return g.err == nil }

func sampleContext() []models.SearchResult {
	return []models.SearchResult{
		{Content: "Photosynthesis converts light energy into glucose.", ChapterName: "Plant Biology", Score: 0.2, ChunkIndex: 0},
		{Content: "Chlorophyll absorbs red and blue light.", ChapterName: "Plant Biology", Score: 0.5, ChunkIndex: 1},
	}
}

func TestGenerateNoContext(t *testing.T) {
	gen := &scriptedGenerator{answer: "should not be called"}
	answerer := NewAnswerer(gen)

	answer, confidence := answerer.Generate(context.Background(), "what is photosynthesis?", nil)
	if answer != NoMaterialAnswer {
		t.Errorf("expected the no-material template, got %q", answer)
	}
	if confidence != 0.1 {
		t.Errorf("confidence = %f, want exactly 0.1", confidence)
	}
	if gen.lastUserMessage != "" {
		t.Error("generation backend must not be invoked with empty context")
	}
}

func TestGenerateGroundsPromptInContext(t *testing.T) {
	gen := &scriptedGenerator{answer: "Photosynthesis is how plants make food."}
	answerer := NewAnswerer(gen)

	answer, confidence := answerer.Generate(context.Background(), "what is photosynthesis?", sampleContext())
	if answer != gen.answer {
		t.Errorf("answer = %q, want backend answer", answer)
	}
	if confidence <= 0.1 || confidence > 0.95 {
		t.Errorf("confidence = %f, want in (0.1, 0.95]", confidence)
	}
	if !strings.Contains(gen.lastSystemPrompt, "Plant Biology") {
		t.Error("system prompt missing chapter attribution")
	}
	if !strings.Contains(gen.lastSystemPrompt, "Chlorophyll absorbs red and blue light.") {
		t.Error("system prompt missing fragment content")
	}
	if gen.lastUserMessage != "what is photosynthesis?" {
		t.Errorf("user message = %q", gen.lastUserMessage)
	}
}

func TestGenerateBackendOutageFallsBack(t *testing.T) {
	gen := &scriptedGenerator{err: ai.ErrGenerationUnavailable}
	answerer := NewAnswerer(gen)

	answer, confidence := answerer.Generate(context.Background(), "what is photosynthesis?", sampleContext())
	if answer == "" {
		t.Fatal("fallback answer must not be empty")
	}
	if !strings.Contains(answer, "Plant Biology") {
		t.Errorf("fallback missing chapter attribution: %q", answer)
	}
	if !strings.Contains(answer, "Photosynthesis converts light energy") {
		t.Errorf("fallback missing top fragment excerpt: %q", answer)
	}
	if confidence <= 0 {
		t.Errorf("confidence = %f, want retrieval-derived positive value", confidence)
	}
}

func TestGenerateFallbackExcerptMultiByte(t *testing.T) {
	// An excerpt cut exceeding 200 bytes must land on a rune boundary.
	gen := &scriptedGenerator{err: ai.ErrGenerationUnavailable}
	answerer := NewAnswerer(gen)

	docs := []models.SearchResult{{
		Content:     strings.Repeat("光合作用是植物将光能转化为化学能的过程", 10),
		ChapterName: "植物生物学",
		Score:       0.2,
	}}
	answer, _ := answerer.Generate(context.Background(), "什么是光合作用?", docs)
	if !utf8.ValidString(answer) {
		t.Fatalf("fallback answer is not valid UTF-8: %q", answer)
	}
	if !strings.Contains(answer, "光合作用") {
		t.Errorf("fallback missing excerpt content: %q", answer)
	}
}

func TestConfidenceBounds(t *testing.T) {
	if got := Confidence(nil); got != 0.1 {
		t.Errorf("Confidence(nil) = %f, want 0.1", got)
	}

	// Perfect matches with ample, diverse material hit the cap.
	rich := []models.SearchResult{
		{Content: strings.Repeat("a", 500), Score: 0},
		{Content: strings.Repeat("b", 500), Score: 0},
		{Content: strings.Repeat("c", 500), Score: 0},
	}
	if got := Confidence(rich); got != 0.95 {
		t.Errorf("Confidence(rich) = %f, want capped 0.95", got)
	}

	// A single distant, thin match scores low but above zero.
	thin := []models.SearchResult{{Content: "x", Score: 50}}
	got := Confidence(thin)
	if got <= 0 || got >= 0.5 {
		t.Errorf("Confidence(thin) = %f, want small positive", got)
	}

	// More and closer material never lowers confidence.
	if Confidence(rich) < Confidence(thin) {
		t.Error("confidence not monotone in retrieval quality")
	}
}
