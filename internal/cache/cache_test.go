package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey(NamespaceSearch, "https://example.com")
	b := CacheKey(NamespacePage, "https://example.com")

	if a == b {
		t.Fatal("namespaces must produce distinct keys")
	}
	if !strings.HasPrefix(a, "decisio:v1:search:") {
		t.Errorf("unexpected key prefix: %s", a)
	}
	if CacheKey(NamespaceSearch, "https://example.com") != a {
		t.Error("key is not stable")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldNow := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = oldNow })

	c := NewDiskCache(t.TempDir(), time.Hour)
	key := CacheKey(NamespacePage, "https://example.com/a")

	if err := c.Set(key, []byte("page text"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "page text" {
		t.Fatalf("got %q ok=%v", got, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestDiskCache_DeleteMissing(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Delete("nope"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	if err := disk.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	layered := NewLayeredCache(time.Hour, dir, time.Hour)
	got, ok := layered.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	if _, ok := layered.memory.Get("k"); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}
}

func TestNew(t *testing.T) {
	if New(false, "", time.Hour) != nil {
		t.Error("disabled cache should be nil")
	}
	if _, ok := New(true, "", time.Hour).(*MemoryCache); !ok {
		t.Error("cache without dir should be memory-only")
	}
	if _, ok := New(true, t.TempDir(), time.Hour).(*LayeredCache); !ok {
		t.Error("cache with dir should be layered")
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	value := []byte("abc")
	_ = c.Set("k", value, 0)
	value[0] = 'x'

	got, _ := c.Get("k")
	got[1] = 'y'
	again, _ := c.Get("k")
	if string(again) != "abc" {
		t.Errorf("cached value changed through caller buffers: %q", again)
	}

	c.Get("missing")
	if s := c.Stats(); s.Hits != 2 || s.Misses != 1 || s.Items != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDiskCache_NamespaceLayout(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	search := CacheKey(NamespaceSearch, "q")
	page := CacheKey(NamespacePage, "https://example.com")

	for _, key := range []string{search, page} {
		if err := c.Set(key, []byte("v"), 0); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, NamespaceSearch)); err != nil {
		t.Errorf("search namespace dir missing: %v", err)
	}

	if err := c.ClearNamespace(NamespaceSearch); err != nil {
		t.Fatalf("clear namespace: %v", err)
	}
	if _, ok := c.Get(search); ok {
		t.Error("search entry survived clearing its namespace")
	}
	if _, ok := c.Get(page); !ok {
		t.Error("page entry removed with the search namespace")
	}
}

func TestDiskCache_Prune(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldNow := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = oldNow })

	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	_ = c.Set(CacheKey(NamespacePage, "old"), []byte("v"), time.Minute)
	_ = c.Set(CacheKey(NamespacePage, "new"), []byte("v"), 3*time.Hour)
	if err := os.WriteFile(filepath.Join(dir, NamespacePage, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)
	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d entries, want 2", removed)
	}
	if _, ok := c.Get(CacheKey(NamespacePage, "new")); !ok {
		t.Error("live entry pruned")
	}
}

func TestDiskCache_PruneMissingDir(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "never-created"), time.Hour)
	if removed, err := c.Prune(); err != nil || removed != 0 {
		t.Errorf("prune of missing dir = %d, %v", removed, err)
	}
}

func TestLayeredCache_PromotesWithRemainingTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldNow := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = oldNow })

	dir := t.TempDir()
	if err := NewDiskCache(dir, time.Hour).Set("k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Minute)
	layered := NewLayeredCache(24*time.Hour, dir, 24*time.Hour)
	if _, ok := layered.Get("k"); !ok {
		t.Fatal("expected disk hit")
	}

	_, expiresAt, found := layered.memory.items.GetWithExpiration("k")
	if !found {
		t.Fatal("expected promotion")
	}
	if expiresAt.After(time.Now().Add(2 * time.Minute)) {
		t.Errorf("promoted entry got a fresh lifetime: expires %v", expiresAt)
	}
}
