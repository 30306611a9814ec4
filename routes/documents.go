package routes

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"lms-assistant-backend/internal/config"
	"lms-assistant-backend/internal/queue"
	"lms-assistant-backend/internal/rag"
	"lms-assistant-backend/internal/telemetry"
	"lms-assistant-backend/internal/vectorindex"
	"lms-assistant-backend/models"
	"lms-assistant-backend/utils"
)

// SetupDocumentRoutes mounts the instructor-facing ingestion and diagnostics
// API. Raw text indexes synchronously; PDF uploads go through the asynq
// worker.
func SetupDocumentRoutes(
	router *gin.Engine,
	cfg *config.Config,
	ingestor *rag.Ingestor,
	retriever *rag.Retriever,
	idx *vectorindex.Index,
	queueClient *asynq.Client,
	metrics *telemetry.Metrics,
) {
	documents := router.Group("/api/v1/documents")

	documents.POST("/index", func(c *gin.Context) {
		var req models.IndexDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input",
				"Invalid request data", gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		result, err := ingestor.Ingest(c.Request.Context(), req.Content, req.SourceFile,
			req.CourseID, req.ChapterName, req.Metadata)

		if metrics != nil {
			metrics.RecordIngestion(time.Since(start).Seconds(), result.ChunkCount, result.Success)
		}

		if err != nil {
			status := http.StatusInternalServerError
			switch result.ErrorCode {
			case models.IngestErrEmptyDocument:
				status = http.StatusBadRequest
			case models.IngestErrEmbeddingUnavailable:
				status = http.StatusServiceUnavailable
			}
			utils.RespondWithError(c, status, result.ErrorCode,
				"Document could not be indexed", gin.H{"source_file": req.SourceFile})
			return
		}

		c.JSON(http.StatusOK, result)
	})

	documents.POST("/upload", func(c *gin.Context) {
		if queueClient == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
				"Ingestion queue is not configured", nil)
			return
		}

		courseID, err := strconv.Atoi(c.PostForm("course_id"))
		if err != nil || courseID <= 0 {
			utils.RespondWithBadRequest(c, "course_id must be a positive integer", nil)
			return
		}
		chapterName := c.PostForm("chapter_name")
		if chapterName == "" {
			utils.RespondWithBadRequest(c, "chapter_name is required", nil)
			return
		}

		file, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "file is required", gin.H{"error": err.Error()})
			return
		}
		if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
			utils.RespondWithError(c, http.StatusBadRequest, "unsupported_file_type",
				"Only PDF uploads are supported", gin.H{"filename": file.Filename})
			return
		}
		if file.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("File exceeds the %d byte limit", cfg.MaxFileSize), nil)
			return
		}

		if err := os.MkdirAll(cfg.FileStorageDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "Failed to prepare upload storage", nil)
			return
		}
		storedPath := filepath.Join(cfg.FileStorageDir, uuid.NewString()+".pdf")
		if err := c.SaveUploadedFile(file, storedPath); err != nil {
			utils.RespondWithInternalError(c, "Failed to store upload", nil)
			return
		}

		task, err := queue.NewIngestDocumentTask(storedPath, file.Filename, courseID, chapterName)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create ingestion task", nil)
			return
		}
		info, err := queueClient.Enqueue(task)
		if err != nil {
			os.Remove(storedPath)
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
				"Failed to enqueue ingestion task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id":      info.ID,
			"source_file":  file.Filename,
			"course_id":    courseID,
			"chapter_name": chapterName,
			"status":       "queued",
		})
	})

	documents.POST("/search", func(c *gin.Context) {
		var req models.SearchDocumentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input",
				"Invalid request data", gin.H{"error": err.Error()})
			return
		}
		k := req.K
		if k <= 0 {
			k = cfg.RetrievalK
		}

		results := retriever.Retrieve(c.Request.Context(), req.Query, req.CourseID, k)
		if results == nil {
			results = []models.SearchResult{}
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   req.Query,
			"results": results,
			"count":   len(results),
		})
	})

	documents.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, idx.Stats())
	})
}
