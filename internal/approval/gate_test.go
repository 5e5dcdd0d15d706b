package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/pkg/types"
)

type fakePrompter struct {
	resp  PromptResponse
	err   error
	calls int
}

func (p *fakePrompter) Prompt(ctx context.Context, req types.ApprovalRequest, needTwoFactor bool) (PromptResponse, error) {
	p.calls++
	return p.resp, p.err
}

type fakeEnv struct{ has bool }

func (e fakeEnv) Has(site string) bool { return e.has }

type fakeVault struct{ err error }

func (v fakeVault) Status(ctx context.Context) error { return v.err }

type fakeCache struct{ has bool }

func (c fakeCache) Has(site string) bool { return c.has }

func TestResolveSiteOverrides(t *testing.T) {
	cfg := config.ApprovalsConfig{
		SitePolicies: map[string]config.SitePolicy{
			"bank.example.com": {Requirement: types.RequireTwoFactor},
			"blog.example.com": {Requirement: types.RequireNone},
			"shop.example.com": {TwoFactorDestructive: true},
		},
	}
	g := New(cfg, nil)

	tests := []struct {
		name string
		req  types.ApprovalRequest
		want types.Requirement
	}{
		{
			name: "override escalates above baseline",
			req:  types.ApprovalRequest{Site: "bank.example.com", Tier: types.TierAuthentication},
			want: types.RequireTwoFactor,
		},
		{
			name: "override can never relax the baseline",
			req:  types.ApprovalRequest{Site: "blog.example.com", Tier: types.TierFormFill},
			want: types.RequirePrompt,
		},
		{
			name: "no policy keeps the baseline",
			req:  types.ApprovalRequest{Site: "other.example.com", Tier: types.TierReadOnly},
			want: types.RequireNone,
		},
		{
			name: "destructive flag forces two_factor",
			req:  types.ApprovalRequest{Site: "shop.example.com", Tier: types.TierDestructive},
			want: types.RequireTwoFactor,
		},
		{
			name: "destructive flag leaves other tiers alone",
			req:  types.ApprovalRequest{Site: "shop.example.com", Tier: types.TierReadOnly},
			want: types.RequireNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Resolve(tt.req))
		})
	}
}

func TestRequestApprovalNoneSkipsPrompt(t *testing.T) {
	p := &fakePrompter{}
	g := New(config.ApprovalsConfig{}, nil, WithPrompter(p))

	res, err := g.RequestApproval(context.Background(), types.ApprovalRequest{
		Action: "screenshot", Site: "example.com",
	})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.NotEmpty(t, res.Token)
	assert.Zero(t, p.calls, "read_only must not prompt")
}

func TestRequestApprovalInteractive(t *testing.T) {
	tests := []struct {
		name     string
		resp     PromptResponse
		approved bool
		duration time.Duration
	}{
		{"reject", PromptResponse{Choice: ChoiceReject}, false, 0},
		{"approve once", PromptResponse{Choice: ChoiceApproveOnce}, true, shortGrant},
		{"approve for duration", PromptResponse{Choice: ChoiceApproveDuration}, true, 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePrompter{resp: tt.resp}
			g := New(config.ApprovalsConfig{}, nil, WithPrompter(p))

			res, err := g.RequestApproval(context.Background(), types.ApprovalRequest{
				Action: "fill_form", Site: "example.com",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.approved, res.Approved)
			assert.Equal(t, 1, p.calls)
			if tt.approved {
				assert.Equal(t, tt.duration, res.GrantDuration)
			}
		})
	}
}

func TestRequestApprovalInteractiveWithoutPrompter(t *testing.T) {
	g := New(config.ApprovalsConfig{}, nil)
	res, err := g.RequestApproval(context.Background(), types.ApprovalRequest{
		Action: "fill_form", Site: "example.com",
	})
	require.Error(t, err)
	assert.False(t, res.Approved)
}

func TestRequestApprovalTwoFactor(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		approved bool
	}{
		{"valid six digits", "123456", true},
		{"valid eight digits", "12345678", true},
		{"too short", "12345", false},
		{"letters", "12345a", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePrompter{resp: PromptResponse{Choice: ChoiceApproveOnce, Code: tt.code}}
			g := New(config.ApprovalsConfig{}, nil, WithPrompter(p))

			res, err := g.RequestApproval(context.Background(), types.ApprovalRequest{
				Action: "purchase", Site: "shop.example.com",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.approved, res.Approved)
			if tt.approved {
				assert.True(t, res.TwoFactorUsed)
				assert.Equal(t, shortGrant, res.GrantDuration, "two-factor grants stay short")
			}
		})
	}
}

func TestRequestApprovalTwoFactorReject(t *testing.T) {
	// Rejecting leaves the code empty; the denial must name the rejection,
	// not a code failure.
	p := &fakePrompter{resp: PromptResponse{Choice: ChoiceReject}}
	g := New(config.ApprovalsConfig{}, nil, WithPrompter(p))

	res, err := g.RequestApproval(context.Background(), types.ApprovalRequest{
		Action: "purchase", Site: "shop.example.com",
	})
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, "rejected at prompt", res.Reason)
}

func TestRequestApprovalUnattended(t *testing.T) {
	ctx := context.Background()

	t.Run("no source declared", func(t *testing.T) {
		g := New(config.ApprovalsConfig{Mode: types.ModeUnattended}, nil)
		res, err := g.RequestApproval(ctx, types.ApprovalRequest{Action: "fill_form", Site: "a"})
		assert.ErrorIs(t, err, ErrNoCredentialSource)
		assert.False(t, res.Approved)
	})

	t.Run("env source missing variables", func(t *testing.T) {
		g := New(config.ApprovalsConfig{
			Mode:             types.ModeUnattended,
			CredentialSource: types.SourceEnvironment,
		}, nil, WithEnvChecker(fakeEnv{has: false}))
		res, err := g.RequestApproval(ctx, types.ApprovalRequest{Action: "login", Site: "a"})
		assert.ErrorIs(t, err, ErrSourceCheckFailed)
		assert.False(t, res.Approved)
	})

	t.Run("env source present", func(t *testing.T) {
		g := New(config.ApprovalsConfig{
			Mode:             types.ModeUnattended,
			CredentialSource: types.SourceEnvironment,
		}, nil, WithEnvChecker(fakeEnv{has: true}))
		res, err := g.RequestApproval(ctx, types.ApprovalRequest{Action: "login", Site: "a"})
		require.NoError(t, err)
		assert.True(t, res.Approved)
	})

	t.Run("sealed vault", func(t *testing.T) {
		g := New(config.ApprovalsConfig{
			Mode:             types.ModeUnattended,
			CredentialSource: types.SourceVault,
		}, nil, WithVaultStatus(fakeVault{err: errors.New("sealed")}))
		res, err := g.RequestApproval(ctx, types.ApprovalRequest{Action: "login", Site: "a"})
		require.Error(t, err)
		assert.False(t, res.Approved)
	})

	t.Run("destructive denied by default", func(t *testing.T) {
		g := New(config.ApprovalsConfig{
			Mode:             types.ModeUnattended,
			CredentialSource: types.SourceCache,
		}, nil, WithCacheChecker(fakeCache{has: true}))
		res, err := g.RequestApproval(ctx, types.ApprovalRequest{Action: "delete", Site: "a"})
		require.NoError(t, err)
		assert.False(t, res.Approved)
	})

	t.Run("destructive allowed with override", func(t *testing.T) {
		g := New(config.ApprovalsConfig{
			Mode:             types.ModeUnattended,
			CredentialSource: types.SourceCache,
			AllowDestructive: true,
		}, nil, WithCacheChecker(fakeCache{has: true}))
		res, err := g.RequestApproval(ctx, types.ApprovalRequest{Action: "delete", Site: "a"})
		require.NoError(t, err)
		assert.True(t, res.Approved)
	})
}

func TestGrantTokenSingleUse(t *testing.T) {
	g := New(config.ApprovalsConfig{}, nil)
	res, err := g.RequestApproval(context.Background(), types.ApprovalRequest{
		Action: "navigate", Site: "example.com",
	})
	require.NoError(t, err)
	require.True(t, res.Approved)

	assert.True(t, g.RedeemToken(res.Token))
	assert.False(t, g.RedeemToken(res.Token), "tokens redeem exactly once")
	assert.False(t, g.RedeemToken("deadbeefdeadbeefdeadbeefdeadbeef"))
}

func TestGrantTokensAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		tok := newGrantToken()
		require.Len(t, tok, 32)
		require.False(t, seen[tok])
		seen[tok] = true
	}
}
