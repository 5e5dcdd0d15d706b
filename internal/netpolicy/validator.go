// Package netpolicy decides whether a URL may be fetched before anything
// touches the network.
package netpolicy

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/browsegate/browsegate/internal/config"
)

// WelcomeURL is the one local-document exception: it renders from an
// in-memory string and performs no network egress.
const WelcomeURL = "about:welcome"

// sensitiveSuffixes are denied regardless of the allow-list.
var sensitiveSuffixes = []string{".internal", ".local"}

// Result is the outcome of validating one URL.
type Result struct {
	Allowed       bool
	LocalDocument bool
	Reason        string
}

// Validator evaluates URLs against the network policy. It is stateless:
// every call is a pure function of the compiled policy and the input.
type Validator struct {
	blockLoopback bool
	blockPrivate  bool
	allowGlobs    []compiledHost
}

type compiledHost struct {
	pattern string
	g       glob.Glob
}

// New compiles the network policy. Allow-list entries are exact hostnames or
// "*.suffix" wildcards.
func New(cfg config.NetworkConfig) (*Validator, error) {
	v := &Validator{
		blockLoopback: cfg.BlockLoopback,
		blockPrivate:  cfg.BlockPrivate,
	}
	for _, pat := range cfg.AllowedHosts {
		pat = strings.ToLower(strings.TrimSpace(pat))
		if pat == "" {
			continue
		}
		// Compiled without a separator so "*.example.com" keeps suffix
		// semantics and matches subdomains at any depth.
		g, err := glob.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compile allowed host %q: %w", pat, err)
		}
		v.allowGlobs = append(v.allowGlobs, compiledHost{pattern: pat, g: g})
	}
	return v, nil
}

// Validate parses and checks a URL. A non-nil error only signals internal
// failure; policy refusals come back as Result{Allowed: false}.
func (v *Validator) Validate(rawURL string) Result {
	if rawURL == WelcomeURL {
		return Result{Allowed: true, LocalDocument: true}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return deny(fmt.Sprintf("malformed URL: %v", err))
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return deny(fmt.Sprintf("scheme %q is not allowed; only http and https", u.Scheme))
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return deny("URL has no host")
	}

	// Sensitive-suffix and loopback-name checks apply before (and regardless
	// of) the allow-list: an allow-list entry cannot re-open them.
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return deny("loopback hostname localhost is blocked")
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(host, suffix) {
			return deny(fmt.Sprintf("sensitive host suffix %q is blocked", suffix))
		}
	}

	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if r := v.checkAddr(addr); !r.Allowed {
			return r
		}
	} else if v.blockPrivate || v.blockLoopback {
		// Best-effort resolution so a hostname cannot smuggle a private
		// address past the literal-IP check.
		if ips, err := net.LookupIP(host); err == nil {
			for _, ip := range ips {
				if addr, ok := netip.AddrFromSlice(ip); ok {
					if r := v.checkAddr(addr.Unmap()); !r.Allowed {
						return r
					}
				}
			}
		}
	}

	if len(v.allowGlobs) > 0 {
		matched := false
		for _, c := range v.allowGlobs {
			if c.g.Match(host) {
				matched = true
				break
			}
		}
		if !matched {
			return deny(fmt.Sprintf("host %q does not match the allow-list", host))
		}
	}

	return Result{Allowed: true}
}

func (v *Validator) checkAddr(addr netip.Addr) Result {
	if v.blockLoopback && addr.IsLoopback() {
		return deny(fmt.Sprintf("loopback address %s is blocked", addr))
	}
	if v.blockPrivate {
		if addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
			return deny(fmt.Sprintf("private address %s is blocked", addr))
		}
	}
	return Result{Allowed: true}
}

func deny(reason string) Result {
	return Result{Allowed: false, Reason: reason}
}
