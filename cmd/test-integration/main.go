package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/classifier"
	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/incidents"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/monitoring"
	"github.com/azure/deepfake-watch-bot/internal/scheduler"
	"github.com/azure/deepfake-watch-bot/internal/sources"
	"github.com/joho/godotenv"
)

const outputDir = "test_output"

// FileTestStorage archives incidents under test_output for inspection
type FileTestStorage struct{}

func (s *FileTestStorage) Store(filename string, data []byte) error {
	path := filepath.Join(outputDir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	fmt.Printf("📁 Archived %d bytes to %s\n", len(data), path)
	return os.WriteFile(path, data, 0644)
}

func (s *FileTestStorage) Retrieve(filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(outputDir, filename))
}

func (s *FileTestStorage) List(prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(outputDir, prefix))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		names = append(names, prefix+entry.Name())
	}
	return names, nil
}

// ConsoleNotification prints alerts and digests
type ConsoleNotification struct{}

func (s *ConsoleNotification) SendReport(report *models.Report) error {
	fmt.Println("\n🎉 DIGEST GENERATED!")
	fmt.Printf("📊 Total Incidents: %d (%d in the last 24h)\n", report.Stats.Total, report.Stats.Recent24h)
	for _, sev := range models.Severities {
		fmt.Printf("   • %s: %d\n", sev, report.Stats.BySeverity[sev])
	}
	for i, inc := range report.Incidents {
		if i >= 3 {
			break
		}
		fmt.Printf("   %d. [%s] %s %s\n", i+1, inc.Severity, inc.ID, inc.SourceURL)
	}
	return nil
}

func (s *ConsoleNotification) SendAlert(alert *models.Alert) error {
	fmt.Printf("🚨 ALERT: %s\n", alert.Message)
	return nil
}

func main() {
	duration := flag.Duration("duration", 2*time.Minute, "how long to let the monitoring job run")
	flag.Parse()

	fmt.Println("🧪 Deepfake Watch Bot - Local Integration Test")
	fmt.Println("==============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	topics := cfg.DefaultTopics
	if args := flag.Args(); len(args) > 0 {
		topics = args
	}
	if len(topics) == 0 {
		topics = []string{"deepfake"}
	}

	// Create test services
	archive := &FileTestStorage{}
	console := &ConsoleNotification{}
	store := incidents.NewStore(incidents.WithAlerter(console), incidents.WithArchive(archive))
	if n, err := store.Restore(archive); err == nil && n > 0 {
		fmt.Printf("♻️  Restored %d incidents from %s\n", n, outputDir)
	}

	fetcher := sources.NewCombined(
		sources.NewInstagramSource(cfg.InstagramAccessToken, cfg.InstagramUserID, "", cfg.SourceRatePerMinute),
		sources.NewTwitterSource(cfg.TwitterBearerToken, "", cfg.SourceRatePerMinute),
		sources.NewYouTubeSource(cfg.YouTubeAPIKey, "", cfg.SourceRatePerMinute),
	)
	if len(fetcher.Names()) == 0 {
		fmt.Println("ℹ️  No content sources configured. Add credentials to .env first.")
		return
	}

	service := monitoring.NewService(cfg, fetcher, classifier.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierAPIKey, cfg.ClassifierTimeout), store)

	fmt.Printf("🔍 Monitoring %s on %s for %s...\n", strings.Join(topics, ", "), strings.Join(fetcher.Names(), ", "), *duration)

	jobID, err := service.Start(topics, cfg.DefaultKeywords)
	if err != nil {
		log.Fatalf("Failed to start monitoring: %v", err)
	}

	time.Sleep(*duration)

	status := service.Status()
	fmt.Printf("\n📈 Job %s: %d items scanned, %d deepfakes confirmed (%.1f%%)\n",
		jobID, status.ItemsScanned, status.DetectionsConfirmed, status.DetectionRate)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.Shutdown(ctx); err != nil {
		fmt.Printf("⚠️  Monitoring did not stop cleanly: %v\n", err)
	}
	store.Close()

	// Print the digest the scheduler would send
	if err := scheduler.NewService(cfg, store, console).RunDigest(); err != nil {
		fmt.Printf("⚠️  Digest failed: %v\n", err)
	}

	fmt.Println("\n✅ Local integration test completed!")
}
