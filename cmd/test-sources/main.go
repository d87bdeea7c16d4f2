package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/screening"
	"github.com/azure/deepfake-watch-bot/internal/sources"
	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("🔍 Deepfake Watch Bot - Source Connectivity Test")
	fmt.Println("================================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Test topic, overridable from the command line
	topic := "deepfake"
	if len(os.Args) > 1 {
		topic = os.Args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("\n📡 Testing content sources for #%s...\n", topic)
	fmt.Println(strings.Repeat("-", 40))

	// Test each source
	testSource(ctx, "Instagram", sources.NewInstagramSource(cfg.InstagramAccessToken, cfg.InstagramUserID, "", 0), topic, cfg.FetchBatchSize)
	testSource(ctx, "Twitter/X", sources.NewTwitterSource(cfg.TwitterBearerToken, "", 0), topic, cfg.FetchBatchSize)
	testSource(ctx, "YouTube", sources.NewYouTubeSource(cfg.YouTubeAPIKey, "", 0), topic, cfg.FetchBatchSize)

	fmt.Println("\n✅ Source connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Configure missing credentials in .env file")
	fmt.Println("   • Point CLASSIFIER_URL at the detection API")
	fmt.Println("   • Run full bot with: go run ./cmd/bot")
}

func testSource(ctx context.Context, name string, source sources.Source, topic string, limit int) {
	fmt.Printf("🔸 Testing %s... ", name)

	if !source.IsEnabled() {
		fmt.Printf("⚠️  DISABLED (missing credentials)\n")
		return
	}

	items, err := source.Fetch(ctx, topic, limit)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	analyzable := 0
	for _, item := range items {
		if item.MediaKind.Analyzable() {
			analyzable++
		}
	}
	fmt.Printf("✅ SUCCESS (%d items, %d with video)\n", len(items), analyzable)

	// Show sample item
	if len(items) > 0 {
		sample := items[0]
		fmt.Printf("   📝 Sample: @%s %q (risk %.2f)\n", sample.Author, truncate(sample.Text, 60), screening.Score(sample))
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
