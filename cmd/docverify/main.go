// main.go — DocVerify API server.
// Document authenticity verification: upload a document or photo, get a
// genuine / suspicious / fake verdict from a heuristic pipeline backed by
// OCR and a vision model.
//
// Port: 8080 (env: DOCVERIFY_PORT).
//
// Routes:
//   /auth/*          — registration, login, refresh, TOTP, password reset
//   /documents       — upload and list documents
//   /documents/{id}  — get, delete, verify, verification history
//   /verifications/* — verification lookup
//   /billing/*       — credit packs, Stripe checkout, webhook, history
//   /admin/*         — user management, review queue, stats, audit, abuse
//   /health, /health/ready, /system/info, /metrics
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/blobcache"
	"github.com/docverify/docverify/internal/config"
	"github.com/docverify/docverify/internal/gemini"
	"github.com/docverify/docverify/internal/handlers"
	"github.com/docverify/docverify/internal/metrics"
	"github.com/docverify/docverify/internal/ocr"
	"github.com/docverify/docverify/internal/r2"
	"github.com/docverify/docverify/internal/ratelimit"
	stripeclient "github.com/docverify/docverify/internal/stripe"
	"github.com/docverify/docverify/pkg/logging"
	"github.com/docverify/docverify/pkg/telemetry"
	"github.com/docverify/docverify/services/admin"
	authsvc "github.com/docverify/docverify/services/auth"
	"github.com/docverify/docverify/services/billing"
	"github.com/docverify/docverify/services/documents"
	"github.com/docverify/docverify/services/verify"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func connectDB(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db, db.PingContext(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("docverify").Fatalf("config: %v", err)
	}
	log := logging.NewLogger("docverify")

	if cfg.SentryDSN != "" {
		if err := telemetry.InitSentry(cfg.SentryDSN, "docverify", version); err != nil {
			log.Warnf("sentry init failed: %v", err)
		}
		defer telemetry.Flush()
	}

	db, err := connectDB(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	handlers.MarkReady()

	// Redis backs rate limiting. Degrades gracefully when absent (dev mode):
	// a nil store means every limit check passes.
	var limiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := ratelimit.NewRedisStoreFromURL(pingCtx, cfg.RedisURL)
		pingCancel()
		if err != nil {
			limiter = ratelimit.New(nil)
			log.WithError(err).Warn("redis unavailable, rate limiting disabled")
		} else {
			defer store.Close()
			limiter = ratelimit.New(store)
			log.Infof("redis connected: %s", cfg.RedisURL)
		}
	} else {
		limiter = ratelimit.New(nil)
		log.Warn("REDIS_URL not set, rate limiting disabled")
	}

	// Object storage is optional; without it uploads live only in the
	// in-process blob cache and verification still works for recent uploads.
	var r2Client *r2.Client
	if cfg.StorageConfigured() {
		r2Client, err = r2.New()
		if err != nil {
			log.Warnf("object storage init failed, degrading to cache-only: %v", err)
			r2Client = nil
		}
	} else {
		log.Warn("object storage not configured — uploaded files are not persisted")
	}

	var stripeClient *stripeclient.Client
	if cfg.BillingEnabled {
		stripeClient, err = stripeclient.New()
		if err != nil {
			log.Warnf("stripe init failed, checkout disabled: %v", err)
			stripeClient = nil
		}
	}

	// Only assign the interface on success so a nil check in the pipeline
	// means "no model configured".
	var model verify.ModelClient
	if cfg.GeminiAPIKey != "" {
		gc, err := gemini.New(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warnf("gemini init failed, verdicts fall back to heuristics: %v", err)
		} else {
			model = gc
			log.Infof("gemini model: %s", gc.Model())
		}
	} else {
		log.Warn("GEMINI_API_KEY not set — verdicts fall back to heuristics")
	}

	engine := ocr.NewTesseractEngine(cfg.OCRLanguage)
	cache := blobcache.New()

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth.StartRevocationPruner(mainCtx, db)

	mux := http.NewServeMux()
	authsvc.RegisterRoutes(mux, db, limiter)

	docsSrv := documents.NewServer(db, r2Client, limiter, cache)
	verifySrv := verify.NewServer(db, r2Client, cache, engine, model, limiter, cfg.BillingEnabled)
	docsSrv.MountVerify(verifySrv.HandleVerify, verifySrv.HandleHistory)
	docsSrv.RegisterRoutes(mux)
	verifySrv.RegisterRoutes(mux)
	verifySrv.StartWorker(mainCtx)

	billing.NewServer(db, stripeClient, cfg.BillingEnabled).RegisterRoutes(mux)
	admin.NewServer(db).RegisterRoutes(mux)

	mux.HandleFunc("/health", handlers.HandleHealth(db))
	mux.HandleFunc("/health/ready", handlers.HandleReady(db))
	mux.HandleFunc("/system/info", handlers.HandleSystemInfo(cfg))
	mux.Handle("/metrics", metrics.Handler())

	handler := telemetry.PanicRecoveryMiddleware("docverify")(metrics.Middleware(mux))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // sync verification can take a full pipeline run
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("docverify %s listening on :%s (env=%s billing=%v)", version, cfg.Port, cfg.Env, cfg.BillingEnabled)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Info("shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown error: %v", err)
	}
	telemetry.Flush()
	log.Info("stopped")
}
