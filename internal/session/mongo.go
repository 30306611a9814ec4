package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms-assistant-backend/models"
)

// MongoStore is the durable session store: one chat_sessions document per
// session, messages appended to chat_messages and read back in timestamp
// order.
type MongoStore struct {
	sessions *mongo.Collection
	messages *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		sessions: db.Collection("chat_sessions"),
		messages: db.Collection("chat_messages"),
	}
}

func (s *MongoStore) Start(ctx context.Context, studentID, courseID int) (string, error) {
	sessionID := uuid.NewString()
	now := time.Now()

	_, err := s.sessions.InsertOne(ctx, models.ChatSession{
		SessionID: sessionID,
		StudentID: studentID,
		CourseID:  courseID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sessionID, nil
}

func (s *MongoStore) Append(ctx context.Context, sessionID string, studentID, courseID int, role, content string) (string, error) {
	now := time.Now()

	// Lenient append: upsert the session document so the first message of a
	// client-chosen session id creates it with a consistent scope.
	_, err := s.sessions.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{
			"$set": bson.M{"updated_at": now},
			"$setOnInsert": bson.M{
				"session_id": sessionID,
				"student_id": studentID,
				"course_id":  courseID,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("failed to touch session: %w", err)
	}

	msg := models.ChatMessage{
		MessageID: uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	return msg.MessageID, nil
}

func (s *MongoStore) Get(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&sess)
	if err == mongo.ErrNoDocuments {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	cursor, err := s.messages.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, &sess.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return &sess, nil
}

func (s *MongoStore) Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return summarize(sess), nil
}
