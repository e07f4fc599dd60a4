package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"

	"attendance-backend/config"
	"attendance-backend/internal/api"
	"attendance-backend/internal/attendance"
	"attendance-backend/internal/bus"
	"attendance-backend/internal/cooldown"
	"attendance-backend/internal/db"
	"attendance-backend/internal/device"
	"attendance-backend/internal/enroll"
	"attendance-backend/internal/notification"
	"attendance-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "attendance-backend ", log.LstdFlags)

	// Load .env if present, then configuration
	if err := godotenv.Load(); err == nil {
		logger.Println(".env file loaded")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	loc, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		logger.Fatalf("invalid timezone %q: %v", cfg.Attendance.Timezone, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event pipeline: transport -> classifier -> bus -> consumers
	eventBus := bus.New()
	transport := device.New(cfg.Device, eventBus)

	// Web push is optional; without VAPID keys attendance events are only
	// visible on the live feed.
	var notifier attendance.Notifier
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		notifier = workerPool
		logger.Println("notification worker pool started")
	} else {
		logger.Println("VAPID keys not configured; web push notifications disabled")
	}

	tracker := cooldown.New(cfg.Attendance.Cooldown)
	recorder := attendance.New(appStore, tracker, loc, notifier)
	go recorder.Run(ctx, eventBus)

	enroller := enroll.New(transport, eventBus, cfg.Enrollment)

	// Device absence is a normal, degraded state rather than a startup
	// failure; a connect can be retried over the API.
	if err := transport.Connect(); err != nil {
		logger.Printf("fingerprint scanner not connected at startup: %v", err)
	}

	// Initialize router
	handler := api.NewHandler(appStore, transport, enroller, recorder, eventBus, webpushOptions, loc)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Closing the transport propagates bus closure, which resolves any
	// in-flight enrollment session immediately.
	transport.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
