// Package approval classifies requested actions into risk tiers, resolves the
// effective policy, and produces approval decisions. The gate fails closed:
// any ambiguity is a denial.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/pkg/types"
)

var (
	// ErrNoCredentialSource means unattended mode was entered without a
	// declared credential source.
	ErrNoCredentialSource = errors.New("unattended mode requires a declared credential source")
	// ErrSourceCheckFailed means the declared source cannot satisfy the action.
	ErrSourceCheckFailed = errors.New("credential source check failed")
)

const shortGrant = 5 * time.Minute

// EnvChecker reports whether environment credentials exist for a site.
type EnvChecker interface {
	Has(site string) bool
}

// VaultStatus probes the vault's locked precondition.
type VaultStatus interface {
	Status(ctx context.Context) error
}

// CacheChecker reports whether a live cache entry exists for a site.
type CacheChecker interface {
	Has(site string) bool
}

// Gate is the approval decision point. All dependencies are optional except
// the prompter in interactive mode.
type Gate struct {
	cfg      config.ApprovalsConfig
	prompter Prompter
	env      EnvChecker
	vault    VaultStatus
	cache    CacheChecker
	grants   *grantRegistry
	logger   *slog.Logger
}

// Option configures optional gate collaborators.
type Option func(*Gate)

func WithPrompter(p Prompter) Option    { return func(g *Gate) { g.prompter = p } }
func WithEnvChecker(e EnvChecker) Option { return func(g *Gate) { g.env = e } }
func WithVaultStatus(v VaultStatus) Option { return func(g *Gate) { g.vault = v } }
func WithCacheChecker(c CacheChecker) Option { return func(g *Gate) { g.cache = c } }

func New(cfg config.ApprovalsConfig, logger *slog.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		cfg:    cfg,
		grants: newGrantRegistry(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve computes the effective approval requirement for a request:
// the stricter of the tier baseline and the site override, with the site's
// destructive-two-factor flag forcing two_factor on destructive actions.
func (g *Gate) Resolve(req types.ApprovalRequest) types.Requirement {
	eff := types.BaselineRequirement(req.Tier)
	if sp, ok := g.cfg.SitePolicies[req.Site]; ok {
		if sp.Requirement != "" {
			eff = types.MoreRestrictive(eff, sp.Requirement)
		}
		if sp.TwoFactorDestructive && req.Tier == types.TierDestructive {
			eff = types.RequireTwoFactor
		}
	}
	return eff
}

// RequestApproval resolves the request under the configured mode. A clean
// denial comes back as an unapproved result with a reason; errors signal
// broken preconditions (missing prompter, failed source check).
func (g *Gate) RequestApproval(ctx context.Context, req types.ApprovalRequest) (types.ApprovalResult, error) {
	if req.Tier == "" {
		req.Tier = types.ClassifyAction(req.Action)
	}
	requirement := g.Resolve(req)

	g.logger.Debug("approval requested",
		"action", req.Action, "site", req.Site,
		"tier", req.Tier, "requirement", requirement, "mode", g.mode())

	if requirement == types.RequireNone {
		return g.grant(shortGrant, false), nil
	}

	switch g.mode() {
	case types.ModeUnattended:
		return g.unattended(ctx, req, requirement)
	default:
		return g.interactive(ctx, req, requirement)
	}
}

// RedeemToken consumes a grant token. Each token redeems exactly once.
func (g *Gate) RedeemToken(token string) bool {
	return g.grants.redeem(token)
}

func (g *Gate) mode() types.Mode {
	if g.cfg.Mode == "" {
		return types.ModeInteractive
	}
	return g.cfg.Mode
}

func (g *Gate) grant(duration time.Duration, twoFactor bool) types.ApprovalResult {
	token := newGrantToken()
	g.grants.issue(token)
	return types.ApprovalResult{
		Approved:      true,
		Token:         token,
		GrantDuration: duration,
		TwoFactorUsed: twoFactor,
	}
}

func deny(reason string) types.ApprovalResult {
	return types.ApprovalResult{Approved: false, Reason: reason}
}

func (g *Gate) interactive(ctx context.Context, req types.ApprovalRequest, requirement types.Requirement) (types.ApprovalResult, error) {
	if g.prompter == nil {
		return deny("no prompter available"), fmt.Errorf("interactive mode without a prompter")
	}

	resp, err := g.prompter.Prompt(ctx, req, requirement == types.RequireTwoFactor)
	if err != nil {
		return deny(err.Error()), err
	}

	if requirement == types.RequireTwoFactor {
		// A rejection is a rejection; the code is only checked on approval.
		if resp.Choice == ChoiceReject {
			return deny("rejected at prompt"), nil
		}
		if !g.verifyTwoFactor(resp.Code) {
			return deny("two-factor code rejected"), nil
		}
		// Two-factor grants are short-lived regardless of the choice made.
		return g.grant(shortGrant, true), nil
	}

	switch resp.Choice {
	case ChoiceApproveOnce:
		return g.grant(shortGrant, false), nil
	case ChoiceApproveDuration:
		d := g.cfg.GrantDuration.Duration
		if d <= 0 {
			d = 30 * time.Minute
		}
		return g.grant(d, false), nil
	default:
		return deny("rejected at prompt"), nil
	}
}

func (g *Gate) unattended(ctx context.Context, req types.ApprovalRequest, requirement types.Requirement) (types.ApprovalResult, error) {
	source := g.cfg.CredentialSource
	if source == "" {
		return deny("no credential source declared"), ErrNoCredentialSource
	}

	if err := g.checkSource(ctx, source, req.Site); err != nil {
		return deny(err.Error()), err
	}

	if requirement == types.RequireTwoFactor {
		// No human to escalate to: destructive work is refused unless the
		// operator set the documented override.
		if !g.cfg.AllowDestructive {
			return deny("two-factor actions are denied in unattended mode"), nil
		}
		g.logger.Warn("destructive action allowed by unattended override",
			"action", req.Action, "site", req.Site)
		return g.grant(shortGrant, false), nil
	}

	return g.grant(shortGrant, false), nil
}

// checkSource validates that the declared credential source can actually
// satisfy the action before any grant is produced.
func (g *Gate) checkSource(ctx context.Context, source types.CredentialSource, site string) error {
	switch source {
	case types.SourceEnvironment:
		if g.env == nil || !g.env.Has(site) {
			return fmt.Errorf("no environment credentials for site %q: %w", site, ErrSourceCheckFailed)
		}
	case types.SourceVault:
		if g.vault == nil {
			return fmt.Errorf("no vault configured: %w", ErrSourceCheckFailed)
		}
		if err := g.vault.Status(ctx); err != nil {
			return fmt.Errorf("vault unavailable: %w", err)
		}
	case types.SourceCache:
		if g.cache == nil || !g.cache.Has(site) {
			return fmt.Errorf("no cached credentials for site %q: %w", site, ErrSourceCheckFailed)
		}
	default:
		return fmt.Errorf("unknown credential source %q: %w", source, ErrSourceCheckFailed)
	}
	return nil
}
