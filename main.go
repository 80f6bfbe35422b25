package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/lexisync/internal/config"
	"github.com/example/lexisync/internal/database"
	"github.com/example/lexisync/internal/excel"
	"github.com/example/lexisync/internal/scheduler"
	syncer "github.com/example/lexisync/internal/sync"
)

func main() {
	importPath := flag.String("import", "", "import a vocabulary file (xlsx or csv) and exit")
	userID := flag.Int64("user", 1, "local user the sync runs for")
	flag.Parse()

	cfg := config.Load()

	if err := database.Connect(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if *importPath != "" {
		importConfig := excel.DefaultImportConfig()
		importConfig.FilePath = *importPath
		result, err := excel.ImportWords(context.Background(), importConfig)
		if err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		log.Printf("Import finished: %d processed, %d created, %d updated, %d skipped, %d errors",
			result.TotalProcessed, result.Created, result.Updated, result.Skipped, len(result.Errors))
		for _, msg := range result.Errors {
			log.Printf("  %s", msg)
		}
		return
	}

	if cfg.RemoteBaseURL == "" {
		log.Fatal("SYNC_REMOTE_URL environment variable is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := syncer.NewHTTPRemote(cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.RemoteTimeout)
	reconciler := syncer.NewReconciler(*userID, cfg.Sync, remote,
		syncer.NewWordTable(),
		syncer.NewProgressTable(),
	)

	sched := scheduler.New(reconciler, cfg.Sync)
	sched.Start()
	defer sched.Stop()

	if cfg.Sync.SyncOnStartup {
		go func() {
			result, err := reconciler.SyncAll(ctx)
			if err != nil {
				log.Printf("Startup sync failed: %v", err)
				return
			}
			log.Printf("Startup sync: %s (%d items, %d errors)", result.Message, result.ItemsProcessed, result.Errors)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Sync service started. Press Ctrl+C to stop.")
	sig := <-sigChan
	log.Printf("Received signal: %v", sig)

	reconciler.CancelSync()
	cancel()
	log.Println("Sync service stopped")
}
