package rag

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"lms-assistant-backend/internal/ai"
	"lms-assistant-backend/internal/session"
	"lms-assistant-backend/internal/vectorindex"
	"lms-assistant-backend/models"
)

func newTestOrchestrator(t *testing.T, gen ai.Generator, store session.Store) *Orchestrator {
	t.Helper()
	embedder := ai.NewHashEmbedder(64)
	idx := seedIndex(t, embedder)
	retriever := NewRetriever(embedder, idx, DefaultOverfetchFactor)
	return NewOrchestrator(retriever, NewAnswerer(gen), store, 3)
}

func TestAskQuestionRecordsBothTurns(t *testing.T) {
	store := session.NewMemoryStore()
	orch := newTestOrchestrator(t, &scriptedGenerator{answer: "Plants use light to make glucose."}, store)

	req := AskRequest{StudentID: 42, CourseID: 1, Message: "what is photosynthesis?"}
	answer, sessionID, err := orch.AskQuestion(context.Background(), req)
	if err != nil {
		t.Fatalf("AskQuestion: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session id for an unscoped request")
	}
	if answer.Answer != "Plants use light to make glucose." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if len(answer.Sources) == 0 {
		t.Error("expected retrieved sources for indexed course material")
	}
	if answer.ProcessingTime < 0 {
		t.Errorf("ProcessingTime = %f", answer.ProcessingTime)
	}

	sess, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 recorded messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != models.RoleUser || sess.Messages[0].Content != req.Message {
		t.Errorf("first message = %+v", sess.Messages[0])
	}
	if sess.Messages[1].Role != models.RoleAssistant || sess.Messages[1].Content != answer.Answer {
		t.Errorf("second message = %+v", sess.Messages[1])
	}
}

func TestAskSameQuestionTwiceAppends(t *testing.T) {
	store := session.NewMemoryStore()
	orch := newTestOrchestrator(t, &scriptedGenerator{answer: "Light becomes glucose."}, store)

	req := AskRequest{StudentID: 7, CourseID: 1, Message: "what is photosynthesis?"}
	_, sessionID, err := orch.AskQuestion(context.Background(), req)
	if err != nil {
		t.Fatalf("first AskQuestion: %v", err)
	}

	req.SessionID = sessionID
	_, secondID, err := orch.AskQuestion(context.Background(), req)
	if err != nil {
		t.Fatalf("second AskQuestion: %v", err)
	}
	if secondID != sessionID {
		t.Fatalf("session id changed: %s vs %s", sessionID, secondID)
	}

	sess, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Messages) != 4 {
		t.Fatalf("expected 4 messages after two turns, got %d", len(sess.Messages))
	}
	wantRoles := []string{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant}
	for i, want := range wantRoles {
		if sess.Messages[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, sess.Messages[i].Role, want)
		}
	}
}

func TestAskQuestionNoMaterial(t *testing.T) {
	store := session.NewMemoryStore()
	orch := newTestOrchestrator(t, &scriptedGenerator{answer: "should not run"}, store)

	// Course 9 has no indexed material.
	answer, _, err := orch.AskQuestion(context.Background(), AskRequest{StudentID: 1, CourseID: 9, Message: "what is photosynthesis?"})
	if err != nil {
		t.Fatalf("AskQuestion: %v", err)
	}
	if answer.Answer != NoMaterialAnswer {
		t.Errorf("expected the no-material template, got %q", answer.Answer)
	}
	if answer.Confidence != 0.1 {
		t.Errorf("Confidence = %f, want 0.1", answer.Confidence)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(answer.Sources))
	}
}

// brokenRecorder starts sessions fine but refuses every append.
type brokenRecorder struct {
	*session.MemoryStore
}

func (b brokenRecorder) Append(ctx context.Context, sessionID string, studentID, courseID int, role, content string) (string, error) {
	return "", errors.New("store write refused")
}

func TestAskQuestionSurvivesRecordingFailure(t *testing.T) {
	store := brokenRecorder{session.NewMemoryStore()}
	orch := newTestOrchestrator(t, &scriptedGenerator{answer: "Light becomes glucose."}, store)

	answer, sessionID, err := orch.AskQuestion(context.Background(), AskRequest{StudentID: 1, CourseID: 1, Message: "what is photosynthesis?"})
	if err != nil {
		t.Fatalf("recording failure must not fail the question: %v", err)
	}
	if sessionID == "" {
		t.Error("expected a session id even when recording fails")
	}
	if answer.Answer != "Light becomes glucose." {
		t.Errorf("answer = %q", answer.Answer)
	}
}

func TestAskQuestionEmbeddingOutageDegrades(t *testing.T) {
	idx, err := vectorindex.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	store := session.NewMemoryStore()
	retriever := NewRetriever(downEmbedder{}, idx, DefaultOverfetchFactor)
	orch := NewOrchestrator(retriever, NewAnswerer(&scriptedGenerator{answer: "unused"}), store, 3)

	answer, _, err := orch.AskQuestion(context.Background(), AskRequest{StudentID: 1, CourseID: 1, Message: "anything"})
	if err != nil {
		t.Fatalf("embedding outage must not fail the question: %v", err)
	}
	if answer.Answer != NoMaterialAnswer {
		t.Errorf("expected no-material degradation, got %q", answer.Answer)
	}
}
