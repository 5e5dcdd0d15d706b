package approval

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/browsegate/browsegate/pkg/types"
)

// Choice is the decision a human makes at the prompt.
type Choice int

const (
	ChoiceReject Choice = iota
	ChoiceApproveOnce
	ChoiceApproveDuration
)

// PromptResponse carries the human's choice and, when asked for, the
// second-factor code.
type PromptResponse struct {
	Choice Choice
	Code   string
}

// Prompter solicits a decision for one request.
type Prompter interface {
	Prompt(ctx context.Context, req types.ApprovalRequest, needTwoFactor bool) (PromptResponse, error)
}

// TTYPrompter prompts on the controlling terminal so approval cannot be
// scripted through redirected stdin.
type TTYPrompter struct {
	mu sync.Mutex
}

func NewTTYPrompter() *TTYPrompter { return &TTYPrompter{} }

func (p *TTYPrompter) Prompt(ctx context.Context, req types.ApprovalRequest, needTwoFactor bool) (PromptResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return PromptResponse{}, fmt.Errorf("open /dev/tty: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "\n=== APPROVAL REQUIRED ===\n")
	fmt.Fprintf(f, "Action: %s\nSite:   %s\nTier:   %s\n", req.Action, orDash(req.Site), req.Tier)
	writeDetails(f, req.Details)
	fmt.Fprintf(f, "[r]eject / approve [o]nce / approve for [d]uration? ")

	reader := bufio.NewReader(f)
	line, err := reader.ReadString('\n')
	if err != nil {
		return PromptResponse{}, fmt.Errorf("read choice: %w", err)
	}

	resp := PromptResponse{}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "o", "once":
		resp.Choice = ChoiceApproveOnce
	case "d", "duration":
		resp.Choice = ChoiceApproveDuration
	default:
		resp.Choice = ChoiceReject
		return resp, nil
	}

	if needTwoFactor {
		fmt.Fprintf(f, "Two-factor code: ")
		code, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(f)
		if err != nil {
			return PromptResponse{}, fmt.Errorf("read two-factor code: %w", err)
		}
		resp.Code = strings.TrimSpace(string(code))
	}
	return resp, nil
}

// writeDetails prints non-secret detail fields in a stable order. Anything
// that looks like a secret is masked rather than shown.
func writeDetails(f *os.File, details map[string]any) {
	if len(details) == 0 {
		return
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "password") || strings.Contains(lk, "token") || strings.Contains(lk, "secret") {
			fmt.Fprintf(f, "  %s: ********\n", k)
			continue
		}
		fmt.Fprintf(f, "  %s: %v\n", k, details[k])
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
