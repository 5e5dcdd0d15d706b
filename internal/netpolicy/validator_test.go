package netpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsegate/browsegate/internal/config"
)

func newValidator(t *testing.T, cfg config.NetworkConfig) *Validator {
	t.Helper()
	v, err := New(cfg)
	require.NoError(t, err)
	return v
}

func TestValidateSchemes(t *testing.T) {
	v := newValidator(t, config.NetworkConfig{})

	tests := []struct {
		url     string
		allowed bool
		reason  string
	}{
		{"https://example.com/page", true, ""},
		{"http://example.com", true, ""},
		{"ftp://example.com/file", false, "scheme"},
		{"file:///etc/passwd", false, "scheme"},
		{"javascript:alert(1)", false, "scheme"},
		{"https://", false, "no host"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := v.Validate(tt.url)
			assert.Equal(t, tt.allowed, res.Allowed)
			if tt.reason != "" {
				assert.Contains(t, res.Reason, tt.reason)
			}
		})
	}
}

func TestValidateWelcomePage(t *testing.T) {
	v := newValidator(t, config.NetworkConfig{BlockLoopback: true, BlockPrivate: true})
	res := v.Validate(WelcomeURL)
	assert.True(t, res.Allowed)
	assert.True(t, res.LocalDocument)
}

func TestValidatePrivateRanges(t *testing.T) {
	v := newValidator(t, config.NetworkConfig{BlockLoopback: true, BlockPrivate: true})

	tests := []struct {
		url    string
		reason string
	}{
		{"https://10.0.0.5/admin", "private address"},
		{"https://172.16.0.1/", "private address"},
		{"https://172.31.255.254/", "private address"},
		{"https://192.168.1.1/", "private address"},
		{"https://169.254.169.254/latest/meta-data", "private address"},
		{"https://127.0.0.1:8080/", "loopback"},
		{"https://[::1]/", "loopback"},
		{"https://[fd00::1]/", "private address"},
		{"https://[fe80::1]/", "private address"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := v.Validate(tt.url)
			assert.False(t, res.Allowed)
			assert.Contains(t, res.Reason, tt.reason)
		})
	}
}

func TestValidatePublicRangesPass(t *testing.T) {
	v := newValidator(t, config.NetworkConfig{BlockLoopback: true, BlockPrivate: true})
	assert.True(t, v.Validate("https://93.184.216.34/").Allowed)
}

func TestValidateSensitiveSuffixes(t *testing.T) {
	// Even an allow-list entry cannot re-open the static deny-list.
	v := newValidator(t, config.NetworkConfig{
		AllowedHosts: []string{"*.internal", "localhost", "ci.local"},
	})

	for _, url := range []string{
		"https://localhost/",
		"https://db.localhost/",
		"https://vault.internal/",
		"https://ci.local/",
	} {
		t.Run(url, func(t *testing.T) {
			assert.False(t, v.Validate(url).Allowed)
		})
	}
}

func TestValidateAllowList(t *testing.T) {
	v := newValidator(t, config.NetworkConfig{
		AllowedHosts: []string{"*.example.com", "exact.org"},
	})

	tests := []struct {
		url     string
		allowed bool
	}{
		{"https://app.example.com/dash", true},
		{"https://a.b.example.com/", true},
		{"https://exact.org/", true},
		{"https://example.com/", false}, // bare apex does not match the wildcard
		{"https://evil.com/", false},
		{"https://exampleXcom.net/", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := v.Validate(tt.url)
			assert.Equal(t, tt.allowed, res.Allowed, "reason: %s", res.Reason)
			if !tt.allowed {
				assert.Contains(t, res.Reason, "allow-list")
			}
		})
	}
}

func TestValidateEmptyAllowListIsOpen(t *testing.T) {
	v := newValidator(t, config.NetworkConfig{})
	assert.True(t, v.Validate("https://anything.example.net/").Allowed)
}

func TestValidateMalformed(t *testing.T) {
	v := newValidator(t, config.NetworkConfig{})
	res := v.Validate("https://exa mple.com/%zz")
	assert.False(t, res.Allowed)
}
