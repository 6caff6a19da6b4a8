package main

import (
	"aivid/annot8r/internal/api"
	"aivid/annot8r/internal/config"
	"aivid/annot8r/internal/repository/mongo"
	"aivid/annot8r/internal/service"
	"aivid/annot8r/internal/storage"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting annotation workflow server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	log.Println("Ensuring database indexes...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureProjectIndexes(ctx, appDB.Collection("projects"))
		mongo.EnsureMemberIndexes(ctx, appDB.Collection("project_members"))
		mongo.EnsureImageIndexes(ctx, appDB.Collection("project_images"))
		mongo.EnsureAssignmentIndexes(ctx, appDB.Collection("image_assignments"))
		mongo.EnsureSubmissionIndexes(ctx, appDB.Collection("submission_reviews"))
		mongo.EnsureActivityIndexes(ctx, appDB.Collection("activities"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Storage ---
	log.Println("Initializing file storage service...")
	fileStorage, err := storage.NewS3Storage(cfg.S3)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize S3 storage: %v", err)
	}

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	userRepo := mongo.NewMongoUserRepository(appDB)
	projectRepo := mongo.NewMongoProjectRepository(appDB)
	memberRepo := mongo.NewMongoMemberRepository(appDB)
	imageRepo := mongo.NewMongoImageRepository(appDB)
	assignmentRepo := mongo.NewMongoAssignmentRepository(appDB)
	submissionRepo := mongo.NewMongoSubmissionRepository(appDB)
	activityRepo := mongo.NewMongoActivityRepository(appDB)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	// One lock registry shared by every service that mutates project state.
	locks := service.NewProjectLocks()
	progressService := service.NewProgressService(projectRepo, imageRepo)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	projectService := service.NewProjectService(projectRepo, memberRepo, imageRepo, assignmentRepo, userRepo, activityRepo, progressService, locks)
	imageService := service.NewImageService(projectRepo, imageRepo, assignmentRepo, fileStorage, progressService, locks, activityRepo)
	distributionService := service.NewDistributionService(projectRepo, memberRepo, imageRepo, assignmentRepo, locks, activityRepo)
	submissionService := service.NewSubmissionService(projectRepo, imageRepo, assignmentRepo, submissionRepo, progressService, locks, activityRepo)

	// --- Initialize Gin Engine ---
	router := gin.Default()

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, authService, projectService, imageService, distributionService, submissionService)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
