package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"lms-assistant-backend/internal/ai"
	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/models"
)

// Confidence weighting. No true model-confidence signal exists, so the score
// is derived from retrieval quality: closeness of matches, amount of
// material, and result diversity. Capped below certainty.
const (
	confidenceScoreWeight     = 0.4
	confidenceContentWeight   = 0.3
	confidenceDiversityWeight = 0.3
	confidenceCap             = 0.95

	// Confidence assigned when no material was found at all.
	noContextConfidence = 0.1

	contentCharsTarget = 1000.0
	diversityTarget    = 3.0
)

// NoMaterialAnswer is returned verbatim when retrieval finds nothing; the
// generation backend is not invoked for it.
const NoMaterialAnswer = `I couldn't find content related to your question in the uploaded course materials.

Could you please:
1. Ask a more specific question about the topics covered in your course
2. Make sure the relevant course materials have been uploaded by your instructor
3. Try rephrasing your question using keywords from your syllabus

I'm here to help you learn from your course materials!`

// Answerer turns a question plus retrieved fragments into a grounded answer
// with a confidence estimate. Backend failures fall back to a deterministic
// template built from the top fragment, so the caller always gets a usable
// answer.
type Answerer struct {
	generator ai.Generator
}

func NewAnswerer(generator ai.Generator) *Answerer {
	return &Answerer{generator: generator}
}

// Generate never returns an error; degradation is encoded in the answer text
// and confidence.
func (a *Answerer) Generate(ctx context.Context, question string, contextDocs []models.SearchResult) (string, float64) {
	if len(contextDocs) == 0 {
		return NoMaterialAnswer, noContextConfidence
	}

	confidence := Confidence(contextDocs)

	systemPrompt := buildGroundingPrompt(contextDocs)
	answer, err := a.generator.Complete(ctx, systemPrompt, question)
	if err != nil {
		logger.Warn("generation backend failed, using templated fallback", "error", err)
		return fallbackAnswer(question, contextDocs), confidence
	}

	return answer, confidence
}

// buildGroundingPrompt enumerates each fragment with its chapter attribution
// and constrains the model to the supplied material.
func buildGroundingPrompt(contextDocs []models.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("You are an AI educational assistant helping a student with their coursework.\n")
	sb.WriteString("You have access to the following relevant course material to answer their question:\n\n")

	for i, doc := range contextDocs {
		fmt.Fprintf(&sb, "Context %d (from %s):\n%s\n---\n", i+1, doc.ChapterName, doc.Content)
	}

	sb.WriteString(`
Instructions:
1. Answer the student's question using ONLY the information provided in the context above
2. If the context doesn't contain enough information to fully answer the question, say so clearly
3. Be specific and educational in your response
4. Reference which chapter of the course material you're drawing from
5. If applicable, provide examples or explanations to help the student understand better
6. Keep your response concise but thorough
7. If the question is about something not covered in the provided context, politely redirect the student to topics covered in their course materials`)

	return sb.String()
}

// fallbackAnswer is the deterministic response used when the generation
// backend is down: the top fragment's content with its chapter attribution.
func fallbackAnswer(question string, contextDocs []models.SearchResult) string {
	primary := contextDocs[0]

	excerpt := primary.Content
	if len(excerpt) > 200 {
		cut := 200
		// Back up to a rune boundary so the excerpt stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut] + "..."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Based on your course material from **%s**, here is the most relevant passage for your question:\n\n", primary.ChapterName)
	sb.WriteString(excerpt)
	fmt.Fprintf(&sb, "\n\nThis relates to your question: %q\n\n", question)
	fmt.Fprintf(&sb, "**Key Points:**\n")
	fmt.Fprintf(&sb, "- This material is from chapter: %s\n", primary.ChapterName)
	if len(contextDocs) > 1 {
		fmt.Fprintf(&sb, "- %d more related passages were found in your course materials\n", len(contextDocs)-1)
	}
	sb.WriteString("- You can find more details in the uploaded course materials\n")
	return sb.String()
}

// Confidence combines three normalised retrieval signals: mean closeness
// 1/(1+score), material volume against contentCharsTarget, and result count
// against diversityTarget.
func Confidence(contextDocs []models.SearchResult) float64 {
	if len(contextDocs) == 0 {
		return noContextConfidence
	}

	var closeness float64
	var totalChars int
	for _, doc := range contextDocs {
		closeness += 1.0 / (1.0 + doc.Score)
		totalChars += len(doc.Content)
	}
	closeness /= float64(len(contextDocs))

	contentQuality := float64(totalChars) / contentCharsTarget
	if contentQuality > 1 {
		contentQuality = 1
	}
	diversity := float64(len(contextDocs)) / diversityTarget
	if diversity > 1 {
		diversity = 1
	}

	confidence := closeness*confidenceScoreWeight +
		contentQuality*confidenceContentWeight +
		diversity*confidenceDiversityWeight
	if confidence > confidenceCap {
		confidence = confidenceCap
	}
	return confidence
}
