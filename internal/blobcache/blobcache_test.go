package blobcache

import (
	"fmt"
	"testing"
	"time"
)

func TestPutGet(t *testing.T) {
	c := New()
	c.Put("doc-1", []byte("payload"), "image/png")

	data, mime, ok := c.Get("doc-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != "payload" || mime != "image/png" {
		t.Errorf("got (%q, %q)", data, mime)
	}

	if _, _, ok := c.Get("doc-2"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestExpiry(t *testing.T) {
	c := New()
	c.ttl = 10 * time.Millisecond
	c.Put("doc-1", []byte("payload"), "image/png")
	time.Sleep(25 * time.Millisecond)
	if _, _, ok := c.Get("doc-1"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestEviction(t *testing.T) {
	c := New()
	c.max = 3
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("doc-%d", i), []byte{byte(i)}, "image/png")
	}
	if len(c.entries) != 3 {
		t.Errorf("expected 3 entries after eviction, got %d", len(c.entries))
	}
	if _, _, ok := c.Get("doc-3"); !ok {
		t.Error("newest entry should survive eviction")
	}
}

func TestDelete(t *testing.T) {
	c := New()
	c.Put("doc-1", []byte("payload"), "application/pdf")
	c.Delete("doc-1")
	if _, _, ok := c.Get("doc-1"); ok {
		t.Error("expected miss after delete")
	}
}
