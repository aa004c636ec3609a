package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"vipspatchbay/internal/cache"
	"vipspatchbay/internal/config"
	"vipspatchbay/internal/database"
	"vipspatchbay/internal/graph"
	"vipspatchbay/internal/invalidate"
	"vipspatchbay/internal/logger"
	"vipspatchbay/internal/observability"
	"vipspatchbay/internal/pipeline"
	"vipspatchbay/internal/router"
	"vipspatchbay/internal/store"
	"vipspatchbay/internal/thumbnail"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	port := getEnv("PORT", "3001")
	env := getEnv("NODE_ENV", "development")
	imageStoreRoot := getEnv("IMAGE_STORE_ROOT", "./image_store")
	execTimeout := config.SubprocessTimeout()

	logger.Init("vipspatchbay", env, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), "vipspatchbay")
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Printf("Error shutting down OpenTelemetry: %v", err)
			}
		}()
		log.Println("OpenTelemetry initialized")
	}

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.New(databaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	imageStore, err := store.New(imageStoreRoot)
	if err != nil {
		log.Fatal("Failed to initialize image store:", err)
	}

	images := store.NewInputImages(db)
	blockGraph := graph.New(db)
	cacheIndex := cache.New(db)
	evaluator := pipeline.New(blockGraph, cacheIndex, imageStore, images, execTimeout)
	thumbnails := thumbnail.New(imageStore, config.ThumbnailerBinary(), config.ThumbnailerConstraintArgs(), execTimeout)
	invalidator := invalidate.New(blockGraph, cacheIndex, imageStore)

	r := router.Setup(router.Deps{
		DB:         db,
		Store:      imageStore,
		Images:     images,
		Graph:      blockGraph,
		Cache:      cacheIndex,
		Evaluator:  evaluator,
		Thumbnails: thumbnails,
		Invalidate: invalidator,
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		log.Printf("Image store root: %s", imageStore.Root())
		log.Printf("Environment: %s", env)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
