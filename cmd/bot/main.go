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

	"github.com/azure/deepfake-watch-bot/internal/classifier"
	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/incidents"
	"github.com/azure/deepfake-watch-bot/internal/metrics"
	"github.com/azure/deepfake-watch-bot/internal/monitoring"
	"github.com/azure/deepfake-watch-bot/internal/notifications"
	"github.com/azure/deepfake-watch-bot/internal/scheduler"
	"github.com/azure/deepfake-watch-bot/internal/sources"
	"github.com/azure/deepfake-watch-bot/internal/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Deepfake Watch Bot")

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logrus.Fatalf("Failed to register metrics: %v", err)
	}

	// Initialize notification services
	notificationService := notifications.NewService(cfg)
	if !notificationService.Enabled() {
		logrus.Warn("No notification channel configured, alerts and digests are log-only")
	}

	// Initialize the incident store, archived in Azure storage when an account is set
	storeOpts := []incidents.Option{incidents.WithAlerter(notificationService)}
	var archive storage.StorageInterface
	if cfg.StorageAccount != "" {
		azureStorage, err := storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		archive = azureStorage
		storeOpts = append(storeOpts, incidents.WithArchive(archive))
	} else {
		logrus.Warn("AZURE_STORAGE_ACCOUNT not set, incidents are kept in memory only")
	}

	incidentStore := incidents.NewStore(storeOpts...)
	if _, err := incidentStore.Restore(archive); err != nil {
		logrus.Errorf("Failed to restore archived incidents: %v", err)
	}

	// Initialize content sources
	fetcher := sources.NewCombined(
		sources.NewInstagramSource(cfg.InstagramAccessToken, cfg.InstagramUserID, "", cfg.SourceRatePerMinute),
		sources.NewTwitterSource(cfg.TwitterBearerToken, "", cfg.SourceRatePerMinute),
		sources.NewYouTubeSource(cfg.YouTubeAPIKey, "", cfg.SourceRatePerMinute),
	)
	logrus.Infof("Content sources enabled: %v", fetcher.Names())

	contentClassifier := classifier.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierAPIKey, cfg.ClassifierTimeout)

	// Initialize monitoring service
	monitoringService := monitoring.NewService(cfg, fetcher, contentClassifier, incidentStore)

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, incidentStore, notificationService)

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	if len(cfg.DefaultTopics) > 0 {
		jobID, err := monitoringService.Start(cfg.DefaultTopics, cfg.DefaultKeywords)
		if err != nil {
			logrus.Errorf("Failed to start default monitoring job: %v", err)
		} else {
			logrus.Infof("Default monitoring job %s watching %v", jobID, cfg.DefaultTopics)
		}
	}

	// Set up HTTP server for health checks and administration
	router := newRouter(&api{
		monitor:   monitoringService,
		incidents: incidentStore,
		digest:    schedulerService,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	if err := monitoringService.Shutdown(ctx); err != nil {
		logrus.Errorf("Monitoring loops forced to stop: %v", err)
	}
	schedulerService.Stop()

	// Flush pending alerts and archive writes
	incidentStore.Close()

	logrus.Info("Server exited")
}
