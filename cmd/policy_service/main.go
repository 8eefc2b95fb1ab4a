package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"policyhub/internal/assistant/responder"
	assistantsvc "policyhub/internal/assistant/service"
	"policyhub/internal/assistant/splitters"
	"policyhub/internal/assistant/vectorstore"
	"policyhub/internal/config"
	"policyhub/internal/database/milvus"
	"policyhub/internal/database/minio"
	"policyhub/internal/database/mysql"
	"policyhub/internal/database/redis"
	"policyhub/internal/embedding"
	"policyhub/internal/llm"
	"policyhub/internal/models"
	"policyhub/internal/policy/api"
	policysvc "policyhub/internal/policy/service"
	"policyhub/internal/policy/store"
	"policyhub/pkg/logger"
)

const serviceName = "PolicyService"

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New(serviceName, "")
	appLogger.Info("Starting Policy Service...")

	ctx := context.Background()

	// 3. Initialize Backing Stores
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}
	if err := db.AutoMigrate(&models.Policy{}); err != nil {
		log.Fatalf("Failed to migrate database schema: %v", err)
	}

	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		log.Fatalf("Failed to connect to Milvus: %v", err)
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		log.Fatalf("Failed to prepare Milvus collection: %v", err)
	}

	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}
	if err := minio.EnsureBucket(ctx, minioClient, cfg.Databases.MinIO.Bucket); err != nil {
		log.Fatalf("Failed to prepare MinIO bucket: %v", err)
	}

	// The answer cache is optional; the service runs without it.
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		appLogger.Warn(fmt.Sprintf("Redis unavailable, answer caching disabled: %v", err))
		redisClient = nil
	}

	// 4. Initialize Model Providers
	embedder, err := embedding.NewGoogleModel(ctx, cfg.Embedding.Gemini.APIKey, cfg.Embedding.Gemini.Model)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}
	completer, err := llm.NewGemini(ctx, cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	// 5. Assemble Services
	vectorStore, err := vectorstore.NewMilvusStore(milvusClient, logger.New(serviceName, ""))
	if err != nil {
		log.Fatalf("Failed to create vector store: %v", err)
	}
	policyStore := store.NewPolicyStore(db)

	resp := responder.NewResponder(embedder, completer, vectorStore, policyStore, responder.Options{
		TopK:              cfg.Assistant.TopK,
		FallbackLimit:     cfg.Assistant.FallbackLimit,
		DisableAutoNarrow: cfg.Assistant.DisableAutoNarrow,
		ProviderTimeout:   time.Duration(cfg.Assistant.ProviderTimeout) * time.Second,
	}, logger.New(serviceName, ""))

	assistant := assistantsvc.NewService(resp, policyStore, vectorStore, redisClient,
		time.Duration(cfg.Assistant.CacheTTL)*time.Second, logger.New(serviceName, ""))

	splitter := splitters.NewWordSplitter(cfg.Assistant.ChunkSize)
	objects := policysvc.NewMinIOObjects(minioClient, cfg.Databases.MinIO.Bucket)
	policies := policysvc.NewService(policyStore, vectorStore, embedder, objects,
		splitter, logger.New(serviceName, ""))

	checks := map[string]api.ComponentCheck{
		"mysql":  mysql.HealthCheck,
		"minio":  minio.HealthCheck,
		"milvus": milvusClient.HealthCheck,
	}
	if redisClient != nil {
		checks["redis"] = redis.HealthCheck
	}

	// 6. Start HTTP Server
	router := api.SetupRouter(api.NewHandler(policies, assistant, checks, appLogger), serviceName)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}
	go func() {
		appLogger.Info(fmt.Sprintf("HTTP server listening at %s", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(fmt.Sprintf("Forced shutdown: %v", err))
	}

	milvusClient.Close()
	if redisClient != nil {
		redis.Close()
	}
	mysql.Close()

	appLogger.Info("Server gracefully stopped")
}
