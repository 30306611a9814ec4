package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/models"
)

// MemoryStore keeps sessions in process memory. Each session carries its own
// lock so concurrent appends to different sessions never contend; the outer
// map lock is held only long enough to find or create the entry.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	mu      sync.Mutex
	session models.ChatSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

func (s *MemoryStore) Start(ctx context.Context, studentID, courseID int) (string, error) {
	sessionID := uuid.NewString()
	s.getOrCreate(sessionID, studentID, courseID)
	return sessionID, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, studentID, courseID int, role, content string) (string, error) {
	entry := s.getOrCreate(sessionID, studentID, courseID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	// updatedAt must strictly increase even when appends land within one
	// clock tick.
	if !now.After(entry.session.UpdatedAt) {
		now = entry.session.UpdatedAt.Add(time.Nanosecond)
	}

	msg := models.ChatMessage{
		MessageID: uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	entry.session.Messages = append(entry.session.Messages, msg)
	entry.session.UpdatedAt = now
	return msg.MessageID, nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	copied := entry.session
	copied.Messages = make([]models.ChatMessage, len(entry.session.Messages))
	copy(copied.Messages, entry.session.Messages)
	return &copied, nil
}

func (s *MemoryStore) Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return summarize(&entry.session), nil
}

// SweepIdle drops sessions whose last activity is older than maxIdle and
// returns how many were removed. Called by the maintenance scheduler.
func (s *MemoryStore) SweepIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		entry.mu.Lock()
		idle := entry.session.UpdatedAt.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("swept idle chat sessions", "removed", removed)
	}
	return removed
}

func (s *MemoryStore) getOrCreate(sessionID string, studentID, courseID int) *memorySession {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok = s.sessions[sessionID]; ok {
		return entry
	}

	now := time.Now()
	entry = &memorySession{
		session: models.ChatSession{
			SessionID: sessionID,
			StudentID: studentID,
			CourseID:  courseID,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.sessions[sessionID] = entry
	return entry
}
