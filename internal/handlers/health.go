// Package handlers provides shared HTTP handler functions used across DocVerify services.
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/docverify/docverify/internal/config"
)

// ready flips to true once migrations have been applied at startup.
var ready atomic.Bool

// MarkReady signals that the DB is migrated and the service can take traffic.
func MarkReady() { ready.Store(true) }

// HandleHealth returns a liveness handler.
// GET /health
//
// Response: {"status":"ok","service":"docverify","database":"up"}
// Database state is reported but does not fail liveness; a DB outage
// should trigger readiness failure, not a pod restart loop.
func HandleHealth(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		dbState := "up"
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				dbState = "down"
			}
		} else {
			dbState = "down"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":   "ok",
			"service":  "docverify",
			"database": dbState,
		})
	}
}

// HandleReady returns a readiness handler.
// GET /health/ready
//
// 503 until the DB is reachable and migrations have run; 200 after.
func HandleReady(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if !ready.Load() || db == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

// HandleSystemInfo reports which optional integrations are configured.
// GET /system/info
func HandleSystemInfo(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		info := map[string]interface{}{
			"service": "docverify",
			"version": "0.1.0",
			"features": map[string]bool{
				"billing":        cfg.BillingEnabled,
				"object_storage": cfg.StorageConfigured(),
				"model_assist":   cfg.GeminiAPIKey != "",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(info)
	}
}

