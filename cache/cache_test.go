package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mempirate/delver/document"
)

func openTestCache(t *testing.T, ttl time.Duration) *PageCache {
	t.Helper()

	c, err := NewPageCache(filepath.Join(t.TempDir(), "pages.db"), ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	return c
}

func TestPutGet(t *testing.T) {
	c := openTestCache(t, time.Hour)

	doc := &document.Document{
		Content: "# Cached Page\n\nbody",
		Metadata: document.Metadata{
			Title:  "Cached Page",
			Source: "https://example.com/page",
			Type:   document.TypeArticle,
		},
	}

	if err := c.Put("https://example.com/page", doc); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get("https://example.com/page")
	if !ok {
		t.Fatal("expected cache hit")
	}

	if got.Content != doc.Content {
		t.Errorf("unexpected content: %q", got.Content)
	}
	if got.Metadata.Title != "Cached Page" {
		t.Errorf("unexpected title: %s", got.Metadata.Title)
	}

	if c.Len() != 1 {
		t.Errorf("unexpected length: %d", c.Len())
	}
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t, time.Hour)

	if _, ok := c.Get("https://example.com/missing"); ok {
		t.Error("expected cache miss")
	}
}

func TestExpiry(t *testing.T) {
	c := openTestCache(t, time.Millisecond)

	doc := &document.Document{Content: "stale"}
	if err := c.Put("https://example.com/stale", doc); err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("https://example.com/stale"); ok {
		t.Error("expected stale entry to miss")
	}

	// The stale entry is evicted on read.
	if c.Len() != 0 {
		t.Errorf("expected eviction, length %d", c.Len())
	}
}

func TestOverwrite(t *testing.T) {
	c := openTestCache(t, time.Hour)

	if err := c.Put("u", &document.Document{Content: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("u", &document.Document{Content: "new"}); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get("u")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Content != "new" {
		t.Errorf("unexpected content: %q", got.Content)
	}
	if c.Len() != 1 {
		t.Errorf("unexpected length: %d", c.Len())
	}
}
