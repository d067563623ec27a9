// server.go — Verification service wiring.
package verify

import (
	"database/sql"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/docverify/docverify/internal/blobcache"
	"github.com/docverify/docverify/internal/ocr"
	"github.com/docverify/docverify/internal/r2"
	"github.com/docverify/docverify/internal/ratelimit"
	"github.com/docverify/docverify/pkg/logging"
)

// Server runs verifications. Every external dependency may be nil: a nil
// OCR engine or model client degrades the pipeline (flags instead of
// failures), a nil r2 client limits byte retrieval to the blob cache.
type Server struct {
	db      *sql.DB
	r2      *r2.Client
	bucket  string
	cache   *blobcache.Cache
	ocr     ocr.Engine
	model   ModelClient
	limiter *ratelimit.Limiter
	log     *logrus.Entry

	// billingEnabled gates the credit debit; verifications are free when
	// billing is off.
	billingEnabled bool
}

// NewServer builds a verification server.
func NewServer(db *sql.DB, r2Client *r2.Client, cache *blobcache.Cache, engine ocr.Engine, model ModelClient, limiter *ratelimit.Limiter, billingEnabled bool) *Server {
	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket == "" {
		bucket = "docverify-documents"
	}
	if cache == nil {
		cache = blobcache.New()
	}
	return &Server{
		db:             db,
		r2:             r2Client,
		bucket:         bucket,
		cache:          cache,
		ocr:            engine,
		model:          model,
		limiter:        limiter,
		log:            logging.NewLogger("verify"),
		billingEnabled: billingEnabled,
	}
}
