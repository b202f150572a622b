package main

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/auth"
	"github.com/ytakahashi/boardsync/internal/config"
	"github.com/ytakahashi/boardsync/internal/handlers"
	"github.com/ytakahashi/boardsync/internal/photos"
	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/services"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/store/memory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	ctx := context.Background()

	var (
		docs     store.DocumentStore
		objects  store.ObjectStore
		verifier auth.Verifier
		opener   handlers.ObjectOpener
	)
	switch cfg.Backend {
	case config.BackendMemory:
		mem := memory.NewObjects(fmt.Sprintf("http://localhost:%s/objects", cfg.Port))
		docs = memory.New()
		objects = mem
		opener = mem
		verifier = auth.NewLocalVerifier(cfg.LocalAuthSecret)
		log.Warn("Using the in-memory store; data is lost on restart")

	default:
		opts := services.ClientOptions(cfg.CredentialsFile)
		firestoreService, err := services.NewFirestoreService(ctx, cfg.ProjectID, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore service: %v", err)
		}
		defer firestoreService.Close()

		app, err := services.NewFirebaseApp(ctx, cfg.ProjectID, cfg.StorageBucket, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firebase app: %v", err)
		}
		bucket, err := services.NewBucketStore(ctx, app, cfg.StorageBucket)
		if err != nil {
			log.Fatalf("Failed to open storage bucket: %v", err)
		}
		identity, err := services.NewFirebaseIdentity(ctx, app)
		if err != nil {
			log.Fatalf("Failed to create Firebase auth client: %v", err)
		}
		docs, objects, verifier = firestoreService, bucket, identity
	}

	var lister photos.Lister
	if cfg.PhotosAccessKey != "" {
		var rc *redis.Client
		if cfg.RedisURL != "" {
			redisOpts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				log.Fatalf("invalid REDIS_URL: %v", err)
			}
			rc = redis.NewClient(redisOpts)
			defer rc.Close()
		}
		lister = photos.NewCache(photos.NewClient(cfg.PhotosBaseURL, cfg.PhotosAccessKey), rc, cfg.PhotoCacheTTL)
	} else {
		log.Info("PHOTOS_ACCESS_KEY not set; photo search disabled")
	}

	repo := repository.New(docs, objects, auth.ContextResolver{})
	handler := handlers.NewHandler(repo, verifier, lister, opener)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	handler.Register(e)

	log.Infof("Server starting on port %s (%s backend)", cfg.Port, cfg.Backend)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
