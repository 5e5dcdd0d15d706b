package credcache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/pkg/types"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	t.Setenv("BROWSEGATE_TEST_MASTER_KEY", "correct horse battery staple")
	c, err := New(config.CacheConfig{
		Path:         filepath.Join(t.TempDir(), "cache.json"),
		MasterKeyEnv: "BROWSEGATE_TEST_MASTER_KEY",
		DefaultTTL:   config.Duration{Duration: time.Hour},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)

	shapes := map[string]types.Credentials{
		"password":     {Username: "alice", Password: "s3cret"},
		"token-only":   {Token: "tok_abc123"},
		"all-fields":   {Username: "bob", Password: "hunter2", Token: "tok_xyz"},
		"unicode-site": {Username: "müller", Password: "päss wörd"},
	}
	for site, creds := range shapes {
		if err := c.Put(site, creds, 0); err != nil {
			t.Fatalf("Put(%s): %v", site, err)
		}
	}
	for site, want := range shapes {
		got, ok := c.Get(site)
		if !ok {
			t.Fatalf("Get(%s): not found", site)
		}
		if got != want {
			t.Errorf("Get(%s) = %+v, want %+v", site, got, want)
		}
	}

	if _, ok := c.Get("never-stored"); ok {
		t.Error("Get on unknown site succeeded")
	}
}

func TestCachePlaintextNeverOnDisk(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("example.com", types.Credentials{Username: "alice", Password: "topsecretvalue"}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(c.store.path)
	if err != nil {
		t.Fatalf("read cache file: %v", err)
	}
	for _, secret := range []string{"alice", "topsecretvalue"} {
		if bytes.Contains(data, []byte(secret)) {
			t.Errorf("cache file contains plaintext %q", secret)
		}
	}
}

func TestCacheExpiry(t *testing.T) {
	c := newTestCache(t)
	base := time.Now()
	c.now = func() time.Time { return base }

	if err := c.Put("example.com", types.Credentials{Token: "tok"}, 10*time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !c.Has("example.com") {
		t.Fatal("Has before expiry = false")
	}

	c.now = func() time.Time { return base.Add(11 * time.Minute) }
	if c.Has("example.com") {
		t.Error("Has after expiry = true")
	}
	if _, ok := c.Get("example.com"); ok {
		t.Error("Get after expiry succeeded")
	}
	// The expired entry must be gone from the store, not just hidden.
	if _, ok := c.store.lookup("example.com"); ok {
		t.Error("expired entry was not evicted")
	}
}

func TestCacheTamperEviction(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("example.com", types.Credentials{Password: "p"}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	e, ok := c.store.lookup("example.com")
	if !ok {
		t.Fatal("entry missing after Put")
	}
	e.Ciphertext[0] ^= 0xff
	c.store.entries["example.com"] = e

	if _, ok := c.Get("example.com"); ok {
		t.Fatal("Get returned data from a tampered entry")
	}
	if _, ok := c.store.lookup("example.com"); ok {
		t.Error("tampered entry was not evicted")
	}
}

func TestCacheFailsClosedWithoutMasterKey(t *testing.T) {
	t.Setenv("BROWSEGATE_UNSET_MASTER_KEY", "")
	_, err := New(config.CacheConfig{
		Path:         filepath.Join(t.TempDir(), "cache.json"),
		MasterKeyEnv: "BROWSEGATE_UNSET_MASTER_KEY",
	}, nil)
	if !errors.Is(err, ErrNoMasterKey) {
		t.Fatalf("New without master key: err = %v, want ErrNoMasterKey", err)
	}
}

func TestCacheFilePermissions(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("example.com", types.Credentials{Token: "tok"}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	info, err := os.Stat(c.store.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("cache file mode = %o, want 600", perm)
	}
}

func TestCacheSurvivesCorruptFile(t *testing.T) {
	t.Setenv("BROWSEGATE_TEST_MASTER_KEY", "key")
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	c, err := New(config.CacheConfig{Path: path, MasterKeyEnv: "BROWSEGATE_TEST_MASTER_KEY"}, nil)
	if err != nil {
		t.Fatalf("New over corrupt file: %v", err)
	}
	if _, ok := c.Get("anything"); ok {
		t.Error("Get returned data from a corrupt file")
	}
}

func TestCacheGC(t *testing.T) {
	c := newTestCache(t)
	base := time.Now()
	c.now = func() time.Time { return base }

	if err := c.Put("short.com", types.Credentials{Token: "a"}, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put("long.com", types.Credentials{Token: "b"}, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c.now = func() time.Time { return base.Add(5 * time.Minute) }
	if err := c.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}
	if _, ok := c.store.lookup("short.com"); ok {
		t.Error("GC kept an expired entry")
	}
	if _, ok := c.store.lookup("long.com"); !ok {
		t.Error("GC dropped a live entry")
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("example.com", types.Credentials{Token: "tok"}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Has("example.com") {
		t.Error("entry survived Clear")
	}
}
