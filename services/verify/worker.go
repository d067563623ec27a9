// worker.go — Background maintenance for verification runs.
// A run can strand in 'running' (process died mid-pipeline) or sit 'pending'
// forever (async goroutine lost). The worker sweeps both every 5 minutes.
package verify

import (
	"context"
	"time"
)

const (
	workerInterval = 5 * time.Minute
	stuckAfter     = 10 * time.Minute
	pendingExpiry  = time.Hour
	maxAttempts    = 3
	pickupBatch    = 10
)

// StartWorker launches the maintenance loop. It stops when ctx is cancelled.
func (s *Server) StartWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(workerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// sweep performs one maintenance pass.
func (s *Server) sweep(ctx context.Context) {
	s.requeueStuck(ctx)
	s.failExhausted(ctx)
	s.expirePending(ctx)
	s.runPending(ctx)
}

// requeueStuck returns long-running verifications to the queue while they
// still have attempts left.
func (s *Server) requeueStuck(ctx context.Context) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verifications
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'running'
		  AND started_at < NOW() - ($1 * INTERVAL '1 second')
		  AND attempts < $2
	`, int(stuckAfter.Seconds()), maxAttempts)
	if err != nil {
		s.log.WithError(err).Error("worker: failed to requeue stuck verifications")
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.WithField("count", n).Warn("worker: requeued stuck verifications")
	}
}

// failExhausted gives up on runs that stranded after their last attempt,
// refunding the credit.
func (s *Server) failExhausted(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE verifications
		SET status = 'failed', error_detail = 'exceeded retry attempts',
		    completed_at = NOW(), updated_at = NOW()
		WHERE status = 'running'
		  AND started_at < NOW() - ($1 * INTERVAL '1 second')
		  AND attempts >= $2
		RETURNING user_id, document_id
	`, int(stuckAfter.Seconds()), maxAttempts)
	if err != nil {
		s.log.WithError(err).Error("worker: failed to fail exhausted verifications")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var userID, docID string
		if err := rows.Scan(&userID, &docID); err != nil {
			continue
		}
		s.refundCredit(ctx, userID)
		s.setDocumentStatus(ctx, docID, "failed")
		s.log.WithField("document_id", docID).Warn("worker: verification failed after retries")
	}
}

// expirePending fails verifications that never got picked up within an hour.
func (s *Server) expirePending(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE verifications
		SET status = 'failed', error_detail = 'expired before processing',
		    completed_at = NOW(), updated_at = NOW()
		WHERE status = 'pending'
		  AND created_at < NOW() - ($1 * INTERVAL '1 second')
		RETURNING user_id, document_id
	`, int(pendingExpiry.Seconds()))
	if err != nil {
		s.log.WithError(err).Error("worker: failed to expire pending verifications")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var userID, docID string
		if err := rows.Scan(&userID, &docID); err != nil {
			continue
		}
		s.refundCredit(ctx, userID)
		s.setDocumentStatus(ctx, docID, "failed")
	}
}

// runPending picks up a batch of queued verifications and executes them.
// The execute guard (status='pending' on the running transition) keeps
// concurrent workers from double-processing.
func (s *Server) runPending(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.document_id, v.user_id, d.doc_type, d.mime_type, d.storage_key
		FROM verifications v
		JOIN documents d ON d.id = v.document_id
		WHERE v.status = 'pending'
		ORDER BY v.created_at ASC
		LIMIT $1
	`, pickupBatch)
	if err != nil {
		s.log.WithError(err).Error("worker: failed to list pending verifications")
		return
	}
	defer rows.Close()

	var jobs []verificationJob
	for rows.Next() {
		var job verificationJob
		if err := rows.Scan(&job.VerificationID, &job.DocumentID, &job.UserID,
			&job.DocType, &job.MIMEType, &job.StorageKey); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		s.execute(ctx, job)
	}
}
