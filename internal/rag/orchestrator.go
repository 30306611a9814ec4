package rag

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/internal/session"
	"lms-assistant-backend/models"
)

// Per-question pipeline stages, recorded on the trace span. Retrieval and
// generation degrade instead of failing, so a question that reaches
// StageRetrieving always ends in StageResponded; StageFailed only occurs
// before retrieval starts (session store refused to create the session).
const (
	StageReceived   = "RECEIVED"
	StageRetrieving = "RETRIEVING"
	StageGenerating = "GENERATING"
	StageRecording  = "RECORDING"
	StageResponded  = "RESPONDED"
	StageFailed     = "FAILED"
)

// AskRequest is one question in (optionally) an existing session.
type AskRequest struct {
	SessionID string
	StudentID int
	CourseID  int
	Message   string
}

// Orchestrator is the RAG façade: retrieve, generate, record, respond.
type Orchestrator struct {
	retriever *Retriever
	answerer  *Answerer
	sessions  session.Store
	topK      int
}

func NewOrchestrator(retriever *Retriever, answerer *Answerer, sessions session.Store, topK int) *Orchestrator {
	if topK <= 0 {
		topK = 3
	}
	return &Orchestrator{
		retriever: retriever,
		answerer:  answerer,
		sessions:  sessions,
		topK:      topK,
	}
}

// AskQuestion runs one question through the pipeline and returns the answer
// with the session id it was recorded under. A session-store failure while
// recording is logged and swallowed: a dropped chat-history write is
// acceptable degradation, a dropped answer is not.
func (o *Orchestrator) AskQuestion(ctx context.Context, req AskRequest) (models.RAGAnswer, string, error) {
	start := time.Now()

	tracer := otel.Tracer("rag-orchestrator")
	ctx, span := tracer.Start(ctx, "rag.ask_question")
	defer span.End()
	span.SetAttributes(
		attribute.Int("rag.student_id", req.StudentID),
		attribute.Int("rag.course_id", req.CourseID),
	)

	setStage := func(stage string) {
		span.AddEvent(stage)
		span.SetAttributes(attribute.String("rag.stage", stage))
	}
	setStage(StageReceived)

	sessionID := req.SessionID
	if sessionID == "" {
		created, err := o.sessions.Start(ctx, req.StudentID, req.CourseID)
		if err != nil {
			setStage(StageFailed)
			return models.RAGAnswer{}, "", fmt.Errorf("failed to start session: %w", err)
		}
		sessionID = created
	}

	setStage(StageRetrieving)
	sources := o.retriever.Retrieve(ctx, req.Message, req.CourseID, o.topK)
	span.SetAttributes(attribute.Int("rag.sources", len(sources)))

	setStage(StageGenerating)
	answer, confidence := o.answerer.Generate(ctx, req.Message, sources)

	setStage(StageRecording)
	if _, err := o.sessions.Append(ctx, sessionID, req.StudentID, req.CourseID, models.RoleUser, req.Message); err != nil {
		logger.Error("failed to record user message", "session_id", sessionID, "error", err)
	} else if _, err := o.sessions.Append(ctx, sessionID, req.StudentID, req.CourseID, models.RoleAssistant, answer); err != nil {
		logger.Error("failed to record assistant message", "session_id", sessionID, "error", err)
	}

	setStage(StageResponded)
	span.SetAttributes(attribute.Float64("rag.confidence", confidence))

	return models.RAGAnswer{
		Answer:         answer,
		Sources:        sources,
		Confidence:     confidence,
		ProcessingTime: time.Since(start).Seconds(),
	}, sessionID, nil
}

// FailureAnswer is the well-formed answer object handed to the UI when the
// pipeline itself errored before producing anything. Confidence 0 marks it
// as unusable for grading or analytics.
func FailureAnswer(elapsed time.Duration) models.RAGAnswer {
	return models.RAGAnswer{
		Answer:         "I'm sorry, I encountered an error while processing your question. Please try asking again or rephrase your question.",
		Sources:        []models.SearchResult{},
		Confidence:     0.0,
		ProcessingTime: elapsed.Seconds(),
	}
}
