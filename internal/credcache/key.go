package credcache

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

// ErrNoMasterKey means no master secret is configured. Caching fails closed:
// callers go to the vault directly instead of storing plaintext.
var ErrNoMasterKey = errors.New("no master key configured")

const keyLen = 32

// hkdfInfo binds derived keys to this purpose so the same master secret can
// safely serve other subsystems later.
const hkdfInfo = "browsegate credential cache v1"

// deriveKey derives the 256-bit cache key from the master secret in the given
// environment variable and seals it in an enclave. The plaintext key is wiped
// from ordinary memory as soon as the enclave owns it.
func deriveKey(envName string) (*memguard.Enclave, error) {
	if envName == "" {
		envName = "BROWSEGATE_MASTER_KEY"
	}
	secret := os.Getenv(envName)
	if secret == "" {
		return nil, fmt.Errorf("%s is not set: %w", envName, ErrNoMasterKey)
	}

	key := make([]byte, keyLen)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive cache key: %w", err)
	}
	return memguard.NewEnclave(key), nil
}
