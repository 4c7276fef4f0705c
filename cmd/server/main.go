package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dias221467/closure-backend/internal/config"
	"github.com/Dias221467/closure-backend/internal/database"
	"github.com/Dias221467/closure-backend/internal/handlers"
	"github.com/Dias221467/closure-backend/internal/jobs"
	"github.com/Dias221467/closure-backend/internal/push"
	"github.com/Dias221467/closure-backend/internal/reactors"
	"github.com/Dias221467/closure-backend/internal/repository"
	cron "github.com/Dias221467/closure-backend/internal/scheduler"
	"github.com/Dias221467/closure-backend/internal/services"
	"github.com/Dias221467/closure-backend/internal/trigger"
	"github.com/Dias221467/closure-backend/pkg/logger"
	"github.com/Dias221467/closure-backend/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger(cfg.LogLevel)
	logger.Log.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB (replica set, change streams need it)
	db, err := database.ConnectDB(cfg)
	if err != nil {
		logger.Log.Fatalf("Database connection error: %v", err)
	}
	if err := database.EnsureIndexes(ctx, db); err != nil {
		logger.Log.Fatalf("Database setup error: %v", err)
	}

	// --- Repositories ---
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	chatRepo := repository.NewChatRepository(db)
	notificationRepo := repository.NewNotificationRepository(db, cfg.NotificationTTL)
	checkpointRepo := repository.NewCheckpointRepository(db)
	objectStore := repository.NewObjectStore(db, cfg.ObjectBucket, cfg.PublicBaseURL, cfg.JWTSecret, cfg.SignedURLTTL)

	// --- Push backend ---
	hub := push.NewHub()
	var sender push.Sender = hub
	if cfg.PushBackend == "fcm" {
		fcm, err := push.NewFCMSender(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logger.Log.Fatalf("FCM setup error: %v", err)
		}
		sender = fcm
	}
	logger.Log.WithField("backend", cfg.PushBackend).Info("Push backend selected")

	// --- Triggers ---
	registry := trigger.NewRegistry()
	reactors.Register(registry, objectStore.Bucket(), reactors.Set{
		CommentNotifier: reactors.NewCommentNotifier(postRepo, notificationRepo),
		CommentCounter:  reactors.NewCommentCounter(postRepo, cfg.DedupeCommentCounts),
		ChatNotifier:    reactors.NewChatNotifier(chatRepo, userRepo, sender, cfg.PushConcurrency),
		AvatarResizer: reactors.NewAvatarResizer(objectStore, userRepo, reactors.AvatarOptions{
			Prefix:     cfg.ProfileImagePrefix,
			Size:       cfg.ThumbnailSize,
			ScratchDir: cfg.ScratchDir,
			Timeout:    cfg.ReactorTimeout,
		}),
	})
	for _, route := range registry.Routes() {
		logger.Log.WithField("route", route).Info("Trigger registered")
	}

	watcher := trigger.NewWatcher(db, registry, checkpointRepo, trigger.WatcherOptions{
		Name:    "closure-triggers",
		Sources: reactors.Sources(),
		Buckets: []string{objectStore.Bucket()},
		Timeout: cfg.ReactorTimeout,
	})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("Trigger watcher stopped")
		}
	}()

	// --- Services ---
	userService := services.NewUserService(userRepo)
	notificationService := services.NewNotificationService(notificationRepo)
	objectService := services.NewObjectService(objectStore, cfg.JWTSecret, cfg.ProfileImagePrefix)
	chatService := services.NewChatService(chatRepo)
	commentService := services.NewCommentService(commentRepo, postRepo, userRepo)

	// --- Cron jobs ---
	reconciler := jobs.NewCommentCountReconciler(postRepo, commentRepo, cfg.ReconcileSettle)
	scheduler, err := cron.StartMaintenanceJobs(reconciler, notificationService, cfg.ReconcileSchedule)
	if err != nil {
		logger.Log.Fatalf("Cron setup error: %v", err)
	}

	// --- Handlers ---
	userHandler := handlers.NewUserHandler(userService, objectService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	objectHandler := handlers.NewObjectHandler(objectService)
	chatHandler := handlers.NewChatHandler(chatService)
	commentHandler := handlers.NewCommentHandler(commentService)
	pushHandler := handlers.NewPushHandler(hub, userService, cfg.JWTSecret)
	healthHandler := handlers.NewHealthHandler(database.Pinger{Client: db.Client()}, registry)

	// Initialize Gorilla Mux router
	router := mux.NewRouter()

	router.HandleFunc("/healthz", healthHandler.HealthHandler).Methods("GET")
	router.HandleFunc("/objects/{name:.+}", objectHandler.GetObjectHandler).Methods("GET")
	router.HandleFunc("/ws", pushHandler.PushWebSocketHandler).Methods("GET")

	// Protected user routes (only authenticated users can access)
	protectedUserRoutes := router.PathPrefix("/users").Subrouter()
	protectedUserRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedUserRoutes.HandleFunc("/me/push-token", userHandler.RegisterPushTokenHandler).Methods("PUT")
	protectedUserRoutes.HandleFunc("/{id}/avatar", userHandler.UploadAvatarHandler).Methods("POST")

	// Notification routes
	protectedNotificationRoutes := router.PathPrefix("/notifications").Subrouter()
	protectedNotificationRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedNotificationRoutes.HandleFunc("", notificationHandler.GetUserNotificationsHandler).Methods("GET")
	protectedNotificationRoutes.HandleFunc("/{id}/read", notificationHandler.MarkAsReadHandler).Methods("POST")
	protectedNotificationRoutes.HandleFunc("/{id}", notificationHandler.DeleteNotificationHandler).Methods("DELETE")

	// Chat routes
	protectedChatRoutes := router.PathPrefix("/chats").Subrouter()
	protectedChatRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedChatRoutes.HandleFunc("/{id}/messages", chatHandler.SendMessageHandler).Methods("POST")
	protectedChatRoutes.HandleFunc("/{id}/messages", chatHandler.GetMessagesHandler).Methods("GET")

	// Comment routes; reading is public
	router.HandleFunc("/posts/{id}/comments", commentHandler.GetCommentsHandler).Methods("GET")
	protectedCommentRoutes := router.PathPrefix("/posts").Subrouter()
	protectedCommentRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedCommentRoutes.HandleFunc("/{id}/comments", commentHandler.AddCommentHandler).Methods("POST")
	protectedCommentRoutes.HandleFunc("/{id}/comments/{commentId}", commentHandler.DeleteCommentHandler).Methods("DELETE")

	// Apply middleware for logging
	router.Use(middleware.LoggingMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server running on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("HTTP server shutdown failed")
	}
	<-scheduler.Stop().Done()
	<-watcherDone
	if err := db.Client().Disconnect(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("MongoDB disconnect failed")
	}
}
