package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/eldarg/pinboard/backend/internal/actions"
	"github.com/eldarg/pinboard/backend/internal/cache"
	"github.com/eldarg/pinboard/backend/internal/database"
	"github.com/eldarg/pinboard/backend/internal/email"
	"github.com/eldarg/pinboard/backend/internal/favorites"
	"github.com/eldarg/pinboard/backend/internal/handlers"
	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/middleware"
	"github.com/eldarg/pinboard/backend/internal/queue"
	"github.com/eldarg/pinboard/backend/internal/storage"
	"github.com/eldarg/pinboard/backend/internal/tagging"
	"github.com/eldarg/pinboard/backend/internal/telemetry"
	"github.com/eldarg/pinboard/backend/internal/views"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("Pinboard backend starting")

	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}
	db := database.DB

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}

	// Redis backs the favorites session tier, the view counter and the
	// popular-images cache. The server runs degraded without it.
	redisClient, err := cache.NewRedisClient(
		os.Getenv("REDIS_HOST"),
		os.Getenv("REDIS_PORT"),
		os.Getenv("REDIS_PASSWORD"),
	)
	if err != nil {
		logger.Log.Warn("Redis unavailable, continuing without session favorites and view caching", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Tracing is opt-in
	samplingRate := 1.0
	if raw := os.Getenv("OTEL_SAMPLING_RATE"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			samplingRate = parsed
		}
	}
	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "pinboard-backend",
		Environment:  os.Getenv("ENVIRONMENT"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		Enabled:      os.Getenv("OTEL_ENABLED") == "true",
		SamplingRate: samplingRate,
	})
	if err != nil {
		logger.Log.Warn("Failed to initialize tracing", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Log.Warn("Tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// Media store: S3 when a bucket is configured, local disk otherwise
	var store storage.Storage
	if bucket := os.Getenv("AWS_BUCKET"); bucket != "" {
		s3Store, err := storage.NewS3Store(os.Getenv("AWS_REGION"), bucket)
		if err != nil {
			logger.Log.Fatal("Failed to initialize S3 store", zap.Error(err))
		}
		if err := s3Store.CheckBucketAccess(context.Background()); err != nil {
			logger.Log.Warn("S3 bucket access check failed, uploads may fail", zap.Error(err))
		}
		store = s3Store
	} else {
		mediaRoot := os.Getenv("MEDIA_ROOT")
		if mediaRoot == "" {
			mediaRoot = "media"
		}
		local, err := storage.NewLocal(mediaRoot)
		if err != nil {
			logger.Log.Fatal("Failed to initialize local media store", zap.Error(err))
		}
		store = local
	}

	var mailer email.Sender
	if fromEmail := os.Getenv("SES_FROM_EMAIL"); fromEmail != "" {
		svc, err := email.NewEmailService(os.Getenv("AWS_REGION"), fromEmail, os.Getenv("SES_FROM_NAME"))
		if err != nil {
			logger.Log.Fatal("Failed to initialize SES", zap.Error(err))
		}
		mailer = svc
	} else {
		logger.Log.Warn("SES_FROM_EMAIL not set, notification emails will be logged only")
		mailer = email.LogSender{}
	}

	siteURL := os.Getenv("SITE_URL")
	if siteURL == "" {
		siteURL = "http://localhost:8080"
	}

	tagger := tagging.NewClient(os.Getenv("CLASSIFIER_URL"))

	dispatcher := queue.NewDispatcher(db)
	jobs := queue.NewJobs(db, mailer, store, tagger, siteURL)
	jobs.Register(dispatcher)
	dispatcher.Start()
	defer dispatcher.Stop()

	actionSvc := actions.NewService(db)

	// Retention sweep runs hourly; actions older than a week go away
	sweeper := actions.NewSweeper(actionSvc, time.Hour, actions.DefaultRetention)
	sweeper.Start()
	defer sweeper.Stop()

	h := handlers.NewHandlers(
		db,
		actionSvc,
		favorites.NewService(db, redisClient),
		views.NewCounter(db, redisClient),
		dispatcher,
		store,
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.GinLogger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Session())
	r.Use(otelgin.Middleware("pinboard-backend"))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	requireAuth := middleware.Auth(db, jwtSecret)
	optionalAuth := middleware.OptionalAuth(db, jwtSecret)

	api := r.Group("/api/v1")
	{
		api.GET("/activity", requireAuth, h.GetActivity)

		users := api.Group("/users")
		{
			users.POST("/:id/follow", requireAuth, h.FollowUser)
			users.DELETE("/:id/follow", requireAuth, h.UnfollowUser)
			users.GET("/:id/followers", h.GetFollowers)
			users.GET("/:id/followings", h.GetFollowings)
			users.GET("/:id/liked-images", requireAuth, h.LikedImages)
		}

		images := api.Group("/images")
		{
			images.POST("", requireAuth, h.CreateImage)
			images.GET("", h.ListImages)
			images.GET("/most-popular", h.MostPopular)
			images.GET("/favorites", optionalAuth, h.ListFavorites)
			images.POST("/favorites/merge", requireAuth, h.MergeFavorites)
			images.GET("/:id", optionalAuth, h.GetImage)
			images.DELETE("/:id", requireAuth, h.DeleteImage)
			images.POST("/:id/like", requireAuth, h.LikeImage)
			images.DELETE("/:id/like", requireAuth, h.UnlikeImage)
			images.GET("/:id/users-like", optionalAuth, h.UsersLike)
			images.POST("/:id/favorite", optionalAuth, h.AddFavorite)
			images.DELETE("/:id/favorite", optionalAuth, h.RemoveFavorite)
			images.POST("/:id/comments", requireAuth, h.CreateComment)
			images.GET("/:id/comments", h.ListComments)
		}

		api.DELETE("/comments/:id", requireAuth, h.DeleteComment)
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("Pinboard backend listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}
