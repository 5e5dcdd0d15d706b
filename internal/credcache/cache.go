// Package credcache is an encrypted, TTL-bound, site-keyed credential store
// so the vault is not queried on every action. Plaintext never reaches the
// durable file: entries hold AEAD ciphertext, tag and IV only.
package credcache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/pkg/types"
)

const ivLen = 16 // GCM with an explicit 128-bit nonce

// Cache is the encrypted credential store. Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	store  *fileStore
	key    *memguard.Enclave
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New opens (or creates) the cache. Fails with ErrNoMasterKey when no master
// secret is configured.
func New(cfg config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key, err := deriveKey(cfg.MasterKeyEnv)
	if err != nil {
		return nil, err
	}
	store, err := newFileStore(cfg.Path)
	if err != nil {
		return nil, err
	}
	ttl := cfg.DefaultTTL.Duration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		store:  store,
		key:    key,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Put encrypts and stores credentials for a site, replacing any prior entry.
// A non-positive ttl uses the configured default.
func (c *Cache) Put(site string, creds types.Credentials, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("serialize credentials: %w", err)
	}

	ciphertext, tag, iv, err := c.seal(plaintext)
	if err != nil {
		return err
	}

	entry := entry{
		Site:       site,
		Ciphertext: ciphertext,
		Tag:        tag,
		IV:         iv,
		ExpiresAt:  c.now().Add(ttl).UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.upsert(entry, c.now())
}

// Get returns the cached credentials for a site, or ok=false if absent,
// expired, or unreadable. Expired and corrupt entries are evicted; a
// corrupt entry is never surfaced as plaintext garbage.
func (c *Cache) Get(site string) (types.Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.lookup(site)
	if !ok {
		return types.Credentials{}, false
	}
	if !e.ExpiresAt.After(c.now()) {
		c.evict(site, "expired")
		return types.Credentials{}, false
	}

	plaintext, err := c.open(e.Ciphertext, e.Tag, e.IV)
	if err != nil {
		c.logger.Warn("evicting corrupt cache entry", "site", site, "error", err)
		c.evict(site, "corrupt")
		return types.Credentials{}, false
	}

	var creds types.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		c.logger.Warn("evicting undecodable cache entry", "site", site, "error", err)
		c.evict(site, "undecodable")
		return types.Credentials{}, false
	}
	return creds, true
}

// Has reports whether a live entry exists without decrypting it.
func (c *Cache) Has(site string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store.lookup(site)
	return ok && e.ExpiresAt.After(c.now())
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.clear()
}

// GC rewrites the file, dropping all expired entries.
func (c *Cache) GC() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.rewrite(c.now())
}

func (c *Cache) evict(site, reason string) {
	if err := c.store.remove(site, c.now()); err != nil {
		c.logger.Warn("cache eviction failed", "site", site, "reason", reason, "error", err)
	}
}

func (c *Cache) seal(plaintext []byte) (ciphertext, tag, iv []byte, err error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create GCM: %w", err)
	}

	iv = make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generate IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - gcm.Overhead()
	return sealed[:split], sealed[split:], iv, nil
}

func (c *Cache) open(ciphertext, tag, iv []byte) ([]byte, error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	if len(iv) != ivLen {
		return nil, fmt.Errorf("bad IV length %d", len(iv))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
