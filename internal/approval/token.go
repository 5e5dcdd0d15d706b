package approval

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// newGrantToken returns a 32-character opaque token used to correlate an
// approval with the audit entries it covered.
func newGrantToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable for a security token.
		panic("grant token: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// grantRegistry tracks issued tokens for single-use redemption.
type grantRegistry struct {
	mu     sync.Mutex
	issued map[string]struct{}
}

func newGrantRegistry() *grantRegistry {
	return &grantRegistry{issued: make(map[string]struct{})}
}

func (r *grantRegistry) issue(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[token] = struct{}{}
}

// redeem consumes a token. A second redemption of the same token fails.
func (r *grantRegistry) redeem(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issued[token]; !ok {
		return false
	}
	delete(r.issued, token)
	return true
}
