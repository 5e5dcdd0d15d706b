package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/browsegate/browsegate/internal/approval"
	"github.com/browsegate/browsegate/internal/credcache"
	"github.com/browsegate/browsegate/internal/netpolicy"
	"github.com/browsegate/browsegate/internal/vault"
	"github.com/browsegate/browsegate/pkg/types"
)

// ErrPolicyDenied covers network and approval refusals. The request will not
// succeed unless it changes.
var ErrPolicyDenied = errors.New("denied by policy")

// Runner executes gated page actions against the browser engine on behalf of
// the active session. Actions, approvals and audit logging are synchronous,
// sequential steps; suspend/resume only affect the time accounting.
type Runner struct {
	manager   *Manager
	validator *netpolicy.Validator
	gate      *approval.Gate
	cache     *credcache.Cache
	provider  vault.Provider
	engine    types.Engine
}

func NewRunner(manager *Manager, validator *netpolicy.Validator, gate *approval.Gate, engine types.Engine) *Runner {
	return &Runner{
		manager:   manager,
		validator: validator,
		gate:      gate,
		engine:    engine,
	}
}

// WithCredentials attaches the credential cache and vault provider used for
// authentication-tier actions. Either may be nil.
func (r *Runner) WithCredentials(cache *credcache.Cache, provider vault.Provider) *Runner {
	r.cache = cache
	r.provider = provider
	return r
}

// Navigate gates the URL and drives the engine to it. The welcome page is a
// local document: it renders from memory and never reaches the engine.
func (r *Runner) Navigate(ctx context.Context, rawURL string) (string, error) {
	sess, ok := r.manager.Current()
	if !ok {
		return "", ErrNoSession
	}
	if err := requireActive(sess); err != nil {
		return "", err
	}

	result := r.validator.Validate(rawURL)
	approved := result.Allowed
	auditDetails := map[string]any{"url": rawURL}
	if !result.Allowed {
		auditDetails["denial_reason"] = result.Reason
	}
	r.audit(string(types.ActionNavigate), auditDetails, &types.ApprovalInfo{Required: false, Approved: approved})

	if !result.Allowed {
		return "", fmt.Errorf("navigate %s: %s: %w", rawURL, result.Reason, ErrPolicyDenied)
	}
	if result.LocalDocument {
		return WelcomePage(), nil
	}
	if err := r.engine.Navigate(ctx, rawURL); err != nil {
		return "", fmt.Errorf("engine navigate: %w", err)
	}
	return "", nil
}

// Perform runs one page action through the approval gate and the engine.
// A timeout may fire between the approval and the action; the session check
// runs again after the gate so an authorized action against a dead session
// still fails closed.
func (r *Runner) Perform(ctx context.Context, action types.PageAction) error {
	sess, ok := r.manager.Current()
	if !ok {
		return ErrNoSession
	}
	if err := requireActive(sess); err != nil {
		return err
	}

	req := types.ApprovalRequest{
		Action:  string(action.Kind),
		Site:    sess.Site,
		Tier:    types.ClassifyAction(string(action.Kind)),
		Details: action.Details,
	}

	requirement := r.gate.Resolve(req)
	result, err := r.gate.RequestApproval(ctx, req)
	info := &types.ApprovalInfo{
		Required: requirement != types.RequireNone,
		Approved: result.Approved,
		Token:    result.Token,
	}
	if err != nil {
		r.audit(req.Action, details(action, "error", err.Error()), info)
		return err
	}
	if !result.Approved {
		r.audit(req.Action, details(action, "denial_reason", result.Reason), info)
		return fmt.Errorf("action %s: %s: %w", req.Action, result.Reason, ErrPolicyDenied)
	}

	// Re-check: the watcher may have expired the session while the human was
	// deciding.
	sess, ok = r.manager.Current()
	if !ok {
		return ErrSessionExpired
	}
	if err := requireActive(sess); err != nil {
		return err
	}

	if req.Tier == types.TierAuthentication {
		if _, err := r.resolveCredentials(ctx, sess.Site); err != nil {
			r.audit(req.Action, details(action, "error", err.Error()), info)
			return err
		}
	}

	if err := r.engine.Perform(ctx, action); err != nil {
		r.audit(req.Action, details(action, "error", err.Error()), info)
		return fmt.Errorf("engine perform %s: %w", req.Action, err)
	}

	r.audit(req.Action, details(action), info)
	return nil
}

// resolveCredentials looks in the cache first, then asks the vault; a vault
// hit is cached for next time. The vault's locked precondition is checked
// before retrieval so a locked store surfaces an error instead of a hang.
func (r *Runner) resolveCredentials(ctx context.Context, site string) (types.Credentials, error) {
	if r.cache != nil {
		if creds, ok := r.cache.Get(site); ok {
			return creds, nil
		}
	}
	if r.provider == nil {
		return types.Credentials{}, fmt.Errorf("site %q: %w", site, vault.ErrCredentialMissing)
	}
	if err := r.provider.Status(ctx); err != nil {
		return types.Credentials{}, err
	}
	creds, err := r.provider.Fetch(ctx, site)
	if err != nil {
		return types.Credentials{}, err
	}
	if r.cache != nil {
		if err := r.cache.Put(site, creds, 0); err != nil {
			// Cache failure falls back to vault-per-action; not fatal.
			r.manager.logger.Warn("credential cache write failed", "site", site, "error", err)
		}
	}
	return creds, nil
}

func (r *Runner) audit(action string, det map[string]any, info *types.ApprovalInfo) {
	if err := r.manager.trail.Log(action, det, info); err != nil {
		r.manager.logger.Warn("audit log failed", "action", action, "error", err)
	}
}

func details(action types.PageAction, extra ...string) map[string]any {
	out := make(map[string]any, len(action.Details)+2)
	for k, v := range action.Details {
		out[k] = v
	}
	if action.Target != "" {
		out["target"] = action.Target
	}
	for i := 0; i+1 < len(extra); i += 2 {
		out[extra[i]] = extra[i+1]
	}
	return out
}

func requireActive(sess types.Session) error {
	switch sess.State {
	case types.SessionStateActive:
		return nil
	case types.SessionStateSuspended:
		return ErrSessionSuspended
	default:
		return ErrSessionExpired
	}
}
