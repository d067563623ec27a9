// fixtures.go — Test data seed helpers.
// Provides canonical test fixtures for users, documents, and verifications.
package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// User represents a minimal test user. Password holds the plaintext
// the seeded password_hash was derived from, for login tests.
type User struct {
	ID       string
	Email    string
	Name     string
	Password string
}

// Document represents a minimal test document.
type Document struct {
	ID      string
	UserID  string
	DocType string
}

// SeedUser inserts a verified active user with the given credits and returns it.
func SeedUser(t *testing.T, db *sql.DB, credits int) *User {
	t.Helper()
	u := &User{
		Email:    fmt.Sprintf("test-%d@example.com", time.Now().UnixNano()),
		Name:     "Test User",
		Password: "testpass123",
	}
	// MinCost keeps seeding fast; these hashes never leave the test DB.
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("seed user hash: %v", err)
	}
	err = db.QueryRow(`
		INSERT INTO users (email, display_name, password_hash, email_verified, status, credits)
		VALUES ($1, $2, $3, TRUE, 'active', $4)
		RETURNING id
	`, u.Email, u.Name, string(hash), credits).Scan(&u.ID)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedAdmin inserts an admin user and returns it.
func SeedAdmin(t *testing.T, db *sql.DB) *User {
	t.Helper()
	u := &User{
		Email: fmt.Sprintf("admin-%d@example.com", time.Now().UnixNano()),
		Name:  "Test Admin",
	}
	err := db.QueryRow(`
		INSERT INTO users (email, display_name, password_hash, email_verified, status, role)
		VALUES ($1, $2, '$2a$12$fakehashfortest', TRUE, 'active', 'admin')
		RETURNING id
	`, u.Email, u.Name).Scan(&u.ID)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return u
}

// SeedDocument inserts an uploaded document for the user and returns it.
func SeedDocument(t *testing.T, db *sql.DB, userID, docType string) *Document {
	t.Helper()
	doc := &Document{UserID: userID, DocType: docType}
	sha := fmt.Sprintf("%064d", time.Now().UnixNano())
	err := db.QueryRow(`
		INSERT INTO documents (user_id, doc_type, file_name, mime_type, size_bytes, sha256)
		VALUES ($1, $2, 'test.jpg', 'image/jpeg', 2048, $3)
		RETURNING id
	`, userID, docType, sha).Scan(&doc.ID)
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

// SeedVerification inserts a completed verification row and returns its ID.
func SeedVerification(t *testing.T, db *sql.DB, documentID, userID, verdict string, confidence float64) string {
	t.Helper()
	var id string
	err := db.QueryRow(`
		INSERT INTO verifications (document_id, user_id, status, verdict, confidence, source, flags, completed_at)
		VALUES ($1, $2, 'done', $3, $4, 'full', $5, NOW())
		RETURNING id
	`, documentID, userID, verdict, confidence, pq.Array([]string{})).Scan(&id)
	if err != nil {
		t.Fatalf("seed verification: %v", err)
	}
	return id
}

// CleanupUser removes a test user (cascades to documents and verifications).
func CleanupUser(db *sql.DB, userID string) {
	_, _ = db.Exec(`DELETE FROM users WHERE id = $1`, userID)
}
