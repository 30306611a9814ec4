package session

import (
	"context"
	"errors"

	"lms-assistant-backend/models"
)

// ErrSessionNotFound distinguishes a missing session from an existing one
// with no messages yet.
var ErrSessionNotFound = errors.New("chat session not found")

// Store holds ordered conversation turns keyed by session id. Implementations
// are injected into the orchestrator; there is deliberately no package-level
// singleton. Within one session, appends serialise; unrelated sessions
// proceed concurrently.
type Store interface {
	// Start creates a fresh session and returns its id.
	Start(ctx context.Context, studentID, courseID int) (string, error)

	// Append adds one message. An unknown sessionID auto-creates the
	// session with the given student/course scope, so an explicit Start is
	// never required before the first message. Returns the message id.
	Append(ctx context.Context, sessionID string, studentID, courseID int, role, content string) (string, error)

	// Get returns the session with its messages in append order, or
	// ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*models.ChatSession, error)

	// Summary returns per-session analytics, or ErrSessionNotFound.
	Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}

func summarize(s *models.ChatSession) *models.SessionSummary {
	summary := &models.SessionSummary{
		SessionID:       s.SessionID,
		StudentID:       s.StudentID,
		CourseID:        s.CourseID,
		TotalMessages:   len(s.Messages),
		DurationSeconds: s.UpdatedAt.Sub(s.CreatedAt).Seconds(),
	}
	for _, m := range s.Messages {
		switch m.Role {
		case models.RoleUser:
			summary.UserMessages++
		case models.RoleAssistant:
			summary.AssistantTurns++
		}
	}
	return summary
}
