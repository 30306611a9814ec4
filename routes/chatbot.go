package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/internal/rag"
	"lms-assistant-backend/internal/session"
	"lms-assistant-backend/internal/telemetry"
	"lms-assistant-backend/models"
	"lms-assistant-backend/utils"
)

// SetupChatbotRoutes mounts the student-facing question answering API.
func SetupChatbotRoutes(router *gin.Engine, orch *rag.Orchestrator, sessions session.Store, metrics *telemetry.Metrics) {
	chatbot := router.Group("/api/v1/chatbot")

	chatbot.POST("/ask", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input",
				"Invalid request data", gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		answer, sessionID, err := orch.AskQuestion(c.Request.Context(), rag.AskRequest{
			SessionID: req.SessionID,
			StudentID: req.StudentID,
			CourseID:  req.CourseID,
			Message:   req.Message,
		})
		if err != nil {
			// The caller contract is a well-formed answer object even when
			// the pipeline errored before producing one.
			logger.Error("question pipeline failed", "error", err, "student_id", req.StudentID)
			answer = rag.FailureAnswer(time.Since(start))
			sessionID = req.SessionID
		}

		if metrics != nil {
			metrics.RecordAnswer(answer.Confidence, len(answer.Sources))
		}

		c.JSON(http.StatusOK, models.ChatResponse{
			SessionID:      sessionID,
			Message:        req.Message,
			Response:       answer.Answer,
			Sources:        answer.Sources,
			Confidence:     answer.Confidence,
			ProcessingTime: answer.ProcessingTime,
		})
	})

	chatbot.POST("/start-session", func(c *gin.Context) {
		var req struct {
			StudentID int `json:"student_id" binding:"required"`
			CourseID  int `json:"course_id,omitempty"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input",
				"Invalid request data", gin.H{"error": err.Error()})
			return
		}

		sessionID, err := sessions.Start(c.Request.Context(), req.StudentID, req.CourseID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to start session", nil)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"session_id": sessionID,
			"student_id": req.StudentID,
			"course_id":  req.CourseID,
		})
	})

	chatbot.GET("/history/:session_id", func(c *gin.Context) {
		sess, err := sessions.Get(c.Request.Context(), c.Param("session_id"))
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load session", nil)
			return
		}

		c.JSON(http.StatusOK, sess)
	})

	chatbot.GET("/session/:session_id/summary", func(c *gin.Context) {
		summary, err := sessions.Summary(c.Request.Context(), c.Param("session_id"))
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to summarize session", nil)
			return
		}

		c.JSON(http.StatusOK, summary)
	})
}
