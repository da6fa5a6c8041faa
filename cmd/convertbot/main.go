package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ah-its-andy/convertbot/internal/api"
	"github.com/ah-its-andy/convertbot/internal/config"
	"github.com/ah-its-andy/convertbot/internal/converter"
	"github.com/ah-its-andy/convertbot/internal/db"
	"github.com/ah-its-andy/convertbot/internal/ffmpeg"
	"github.com/ah-its-andy/convertbot/internal/notify"
	"github.com/ah-its-andy/convertbot/internal/session"
	"github.com/ah-its-andy/convertbot/internal/storage"
	"github.com/ah-its-andy/convertbot/internal/watcher"
	"github.com/ah-its-andy/convertbot/internal/worker"
)

func main() {
	log.Println("Starting convertbot...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration loaded:")
	log.Printf("  HTTP Port: %d", cfg.HTTPPort)
	log.Printf("  DB Path: %s", cfg.DBPath)
	log.Printf("  Max Workers: %d", cfg.MaxWorkers)
	log.Printf("  Queue Size: %d", cfg.QueueSize)
	log.Printf("  Temp Dir: %s", cfg.TempDir)
	log.Printf("  Blob Dir: %s (retention %s)", cfg.BlobDir, cfg.BlobRetention())
	log.Printf("  Builtin Converters: %v", cfg.BuiltinConverters)
	log.Printf("  FFmpeg Path: %q", cfg.FFmpegPath)
	log.Printf("  Rate Limit: %.2f req/s, burst %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	log.Printf("  Redis: %t", cfg.RedisEnabled())
	log.Printf("  S3: %t", cfg.S3Enabled())

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()
	log.Println("Database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &ffmpeg.ExecRunner{}
	locator := ffmpeg.NewLocator(cfg.FFmpegPath, cfg.FFmpegCandidates, database, runner)
	checkTranscoder(ctx, locator)

	registry := converter.NewRegistry()
	converter.RegisterBuiltinConverters(registry, cfg.BuiltinConverters, converter.BuiltinDeps{
		Locator: locator,
		Runner:  runner,
		TempDir: cfg.TempDir,
	})

	blobs, err := storage.NewBlobStore(cfg.BlobDir)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	var publisher notify.Publisher
	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis at %s unreachable: %v", cfg.RedisAddr, err)
		} else {
			log.Println("Connected to Redis successfully")
		}
		pingCancel()
		publisher = notify.NewRedisPublisher(redisClient, cfg.RedisChannel)
	}
	bus := notify.NewEventBus(cfg.MaxEvents)
	outbox := notify.NewOutbox()
	listener := notify.NewListener(bus, outbox, publisher)

	deps := worker.Deps{
		Store:        session.NewStore(),
		Dispatcher:   converter.NewDispatcher(registry, cfg.TempDir),
		Blobs:        blobs,
		Queue:        worker.NewQueue(cfg.QueueSize),
		Listener:     listener,
		Locator:      locator,
		History:      database,
		MD5ChunkSize: cfg.MD5ChunkSize,
	}
	if cfg.S3Enabled() {
		uploader, err := storage.NewS3Uploader(storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			log.Printf("Warning: cloud copies disabled: %v", err)
		} else {
			deps.Uploader = uploader
		}
	}
	orch := worker.NewOrchestrator(deps)

	pool := worker.NewPool(cfg.MaxWorkers, deps.Queue, orch)
	pool.Run(ctx)

	var w *watcher.Watcher
	if cfg.WatchFFmpeg {
		w, err = watcher.New(locator, locator.Dirs())
		if err != nil {
			log.Printf("Warning: ffmpeg watcher disabled: %v", err)
		} else {
			defer w.Close()
			go func() {
				if err := w.Start(ctx); err != nil {
					log.Printf("watcher error: %v", err)
				}
			}()
		}
	}

	go runJanitor(ctx, cfg, blobs, deps.Store, outbox, database)

	server := api.NewServer(api.Deps{
		Orchestrator:   orch,
		Store:          deps.Store,
		Queue:          deps.Queue,
		Blobs:          blobs,
		Registry:       registry,
		Events:         bus,
		Outbox:         outbox,
		Tasks:          database,
		FFmpeg:         locator,
		CloudAvailable: deps.Uploader != nil,
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateBurst:      cfg.RateLimitBurst,
	})
	httpSrv := &http.Server{Addr: cfg.HTTPAddr(), Handler: server.Router}
	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	log.Printf("received signal %s, shutting down...", s)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	if w != nil {
		w.Pause()
	}
	deps.Queue.StopAccepting()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
	pool.Drain(shutdownCtx)
	if redisClient != nil {
		redisClient.Close()
	}
	log.Printf("shutdown complete")
}

// checkTranscoder logs whether media conversions will work.
func checkTranscoder(ctx context.Context, locator *ffmpeg.Locator) {
	vctx, vcancel := context.WithTimeout(ctx, 5*time.Second)
	defer vcancel()
	if v, err := locator.Version(vctx); err != nil {
		log.Printf("  ffmpeg: NOT FOUND (media conversions will fail): %v", err)
	} else {
		log.Printf("  ffmpeg: %s", v)
	}
}

// runJanitor periodically drops orphaned uploads, unclaimed results and old
// history rows.
func runJanitor(ctx context.Context, cfg *config.Config, blobs *storage.BlobStore, jobs *session.Store, outbox *notify.Outbox, database *db.DB) {
	ticker := time.NewTicker(cfg.JanitorInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		blobs.CleanStale(cfg.BlobRetention(), jobs.Handles())
		if n := outbox.Expire(cfg.ResultRetention()); n > 0 {
			log.Printf("[Janitor] dropped %d unclaimed results", n)
		}
		if cfg.HistoryRetentionDays > 0 {
			n, err := database.PurgeTasks(time.Now().Add(-cfg.HistoryRetention()))
			if err != nil {
				log.Printf("[Janitor] purge history: %v", err)
			} else if n > 0 {
				log.Printf("[Janitor] purged %d history rows", n)
			}
		}
	}
}
