package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/anatilbot/internal/bot"
	"github.com/example/anatilbot/internal/content"
	"github.com/example/anatilbot/internal/progress"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	importFile := flag.String("import", "", "import a word list (xlsx or csv) into the content bank and exit")
	flag.Parse()

	cfg := bot.DefaultConfig()

	if *importFile != "" {
		runImport(cfg.DataDir, *importFile)
		return
	}

	bank, err := content.Load(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to load content: %v", err)
	}

	store, err := progress.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open progress store: %v", err)
	}
	defer store.Close()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	b, err := bot.New(token, bank, store, cfg)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := b.Stop(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
		close(done)
	}()

	log.Println("Bot started. Press Ctrl+C to stop.")
	go func() {
		if err := b.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Bot error: %v", err)
		}
	}()

	<-done
	log.Println("Bot stopped successfully")
}

// runImport merges a word list file into the words bank and prints a summary.
func runImport(dataDir, path string) {
	result, err := content.ImportWords(dataDir, content.DefaultImportConfig(path))
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Printf("Import finished: %d processed, %d created, %d updated, %d skipped",
		result.TotalProcessed, result.Created, result.Updated, result.Skipped)
	for _, e := range result.Errors {
		log.Printf("Import warning: %s", e)
	}
}
