package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tillpoint/backend/internal/config"
	"tillpoint/backend/internal/httpapi"
	"tillpoint/backend/internal/kv"
	"tillpoint/backend/internal/offline"
)

// The agent runs next to a terminal. It watches connectivity to the central
// ledger and drains the terminal's pending-transaction queue whenever the link
// comes back.
func main() {
	cfg := config.Load()
	if cfg.AuthSecret == "" {
		log.Fatal("AUTH_SECRET must be set so the agent can sign its own token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	var blobs kv.BlobStore
	closers := make([]func() error, 0, 1)
	if cfg.RedisAddr != "" {
		redisStore := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisStore.Ping(ctx); err != nil {
			log.Fatalf("redis unavailable (%v) and REDIS_ADDR is set; pending transactions must survive restarts", err)
		}
		blobs = redisStore
		closers = append(closers, redisStore.Close)
		log.Println("queue store: redis")
	} else {
		blobs = kv.NewMemoryStore()
		log.Println("queue store: in-memory (pending transactions will not survive a restart)")
	}
	cancel()

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	token, err := auth.IssueToken(cfg.TerminalID, "terminal")
	if err != nil {
		log.Fatalf("sign agent token: %v", err)
	}

	queue := offline.NewQueue(blobs)
	client := offline.NewHTTPClient(cfg.ServerURL, token)
	syncer := offline.NewSyncer(queue, client)

	monitor := offline.NewMonitor(client.Probe, time.Duration(cfg.SyncProbeSeconds)*time.Second)
	monitor.OnOnline(func() {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer drainCancel()
		report, ran := syncer.TrySync(drainCtx)
		if !ran {
			return
		}
		log.Printf("[agent] drained queue: attempted=%d synced=%d duplicates=%d retained=%d rejected=%d",
			report.Attempted, report.Synced, report.Duplicates, report.Retained, len(report.Rejected))
	})
	monitor.OnOffline(func() {
		log.Printf("[agent] %s unreachable, queueing locally", cfg.ServerURL)
	})

	monitor.Start(context.Background())
	log.Printf("sync agent for %s watching %s every %ds", cfg.TerminalID, cfg.ServerURL, cfg.SyncProbeSeconds)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	monitor.Stop()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
	log.Println("agent stopped")
}
