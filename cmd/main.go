package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"lms-assistant-backend/internal/ai"
	"lms-assistant-backend/internal/config"
	"lms-assistant-backend/internal/extract"
	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/internal/queue"
	"lms-assistant-backend/internal/rag"
	"lms-assistant-backend/internal/session"
	"lms-assistant-backend/internal/telemetry"
	"lms-assistant-backend/internal/vectorindex"
	"lms-assistant-backend/middleware"
	"lms-assistant-backend/routes"
	"lms-assistant-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger.InitLogger(cfg.GinMode != "release")

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("lms-assistant-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.VectorIndexPath), 0o755); err != nil {
		log.Fatal("Failed to create index directory: ", err)
	}
	index, err := vectorindex.Open(cfg.VectorIndexPath)
	if err != nil {
		log.Fatal("Failed to open vector index: ", err)
	}
	defer index.Close()

	embedder, err := ai.NewGeminiEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to create embedder: ", err)
	}
	defer embedder.Close()

	generator, err := ai.NewGeminiGenerator(cfg)
	if err != nil {
		log.Fatal("Failed to create generator: ", err)
	}
	defer generator.Close()

	chunker, err := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Invalid chunking configuration: ", err)
	}

	ingestor := rag.NewIngestor(chunker, embedder, index)
	retriever := rag.NewRetriever(embedder, index, cfg.OverfetchFactor)
	answerer := rag.NewAnswerer(generator)

	maintenance := services.NewMaintenance()
	if err := maintenance.RegisterIndexReport(index); err != nil {
		logger.Error("failed to register index report job", "error", err)
	}

	var sessions session.Store
	switch cfg.SessionStore {
	case "mongo":
		mongoClient, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB: ", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		}()
		sessions = session.NewMongoStore(mongoClient.Database(cfg.DBName))
	default:
		memStore := session.NewMemoryStore()
		idle := time.Duration(cfg.SessionIdleMinutes) * time.Minute
		if err := maintenance.RegisterSessionSweep(memStore, idle); err != nil {
			logger.Error("failed to register session sweep job", "error", err)
		}
		sessions = memStore
	}

	maintenance.Start()
	defer maintenance.Stop()

	orchestrator := rag.NewOrchestrator(retriever, answerer, sessions, cfg.RetrievalK)

	// Redis backs both the rate limiter and the ingestion queue. Without it
	// the assistant still answers questions; uploads and limiting are off.
	var rdb *redis.Client
	var queueClient *asynq.Client
	if client, err := config.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis unavailable, rate limiting and async ingestion disabled", "error", err)
	} else {
		rdb = client
		defer rdb.Close()

		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		queueClient = asynq.NewClient(redisOpt)
		defer queueClient.Close()

		// The bbolt index holds an exclusive file lock, so the ingestion
		// worker runs inside this process instead of a separate binary.
		worker := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 4,
			Queues:      map[string]int{"ingestion": 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("ingestion task failed", "type", task.Type(), "error", err)
			}),
		})
		mux := asynq.NewServeMux()
		queue.NewTaskProcessor(extract.NewPDFExtractor(), ingestor).Register(mux)
		go func() {
			if err := worker.Run(mux); err != nil {
				logger.Error("ingestion worker stopped", "error", err)
			}
		}()
		defer worker.Shutdown()
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	if metrics != nil {
		router.Use(middleware.MetricsMiddleware(metrics))
	}
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "healthy",
			"timestamp":          time.Now(),
			"indexed_fragments":  index.Count(),
			"embedding_backend":  embedder.Available(),
			"generation_backend": generator.Available(),
		})
	})

	routes.SetupChatbotRoutes(router, orchestrator, sessions, metrics)
	routes.SetupDocumentRoutes(router, cfg, ingestor, retriever, index, queueClient, metrics)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("server exited")
}
