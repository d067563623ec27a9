// server.go — Document service wiring.
package documents

import (
	"database/sql"
	"net/http"
	"os"

	"github.com/docverify/docverify/internal/blobcache"
	"github.com/docverify/docverify/internal/r2"
	"github.com/docverify/docverify/internal/ratelimit"
)

// SubresourceHandler handles a /documents/{id}/... route with the id already
// parsed and validated.
type SubresourceHandler func(w http.ResponseWriter, r *http.Request, documentID string)

// Server holds the document service dependencies. r2 may be nil when object
// storage is not configured; uploads then keep bytes out of storage and the
// document row carries a NULL storage_url.
type Server struct {
	db      *sql.DB
	r2      *r2.Client
	bucket  string
	limiter *ratelimit.Limiter
	cache   *blobcache.Cache

	// Verification subresources, mounted by the verify service.
	verifyFn  SubresourceHandler
	historyFn SubresourceHandler
}

// NewServer builds a document server. Pass a nil r2 client to run without
// object storage (dev/CI). Uploaded bytes are parked in the blob cache so an
// immediately following verification skips the storage round-trip.
func NewServer(db *sql.DB, r2Client *r2.Client, limiter *ratelimit.Limiter, cache *blobcache.Cache) *Server {
	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket == "" {
		bucket = "docverify-documents"
	}
	if cache == nil {
		cache = blobcache.New()
	}
	return &Server{db: db, r2: r2Client, bucket: bucket, limiter: limiter, cache: cache}
}

// MountVerify attaches the verification subresource handlers for
// POST /documents/{id}/verify and GET /documents/{id}/verifications.
func (s *Server) MountVerify(verify, history SubresourceHandler) {
	s.verifyFn = verify
	s.historyFn = history
}
