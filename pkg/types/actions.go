package types

// Tier classifies the risk of a page action.
type Tier string

const (
	TierReadOnly       Tier = "read_only"
	TierFormFill       Tier = "form_fill"
	TierAuthentication Tier = "authentication"
	TierDestructive    Tier = "destructive"
)

// Requirement is the approval level demanded before an action may run.
type Requirement string

const (
	RequireNone      Requirement = "none"
	RequirePrompt    Requirement = "prompt"
	RequireAlways    Requirement = "always"
	RequireTwoFactor Requirement = "two_factor"
)

// requirementRank orders requirements from least to most restrictive.
var requirementRank = map[Requirement]int{
	RequireNone:      0,
	RequirePrompt:    1,
	RequireAlways:    2,
	RequireTwoFactor: 3,
}

// Rank returns the position of r in the none < prompt < always < two_factor
// order. Unknown values rank above two_factor so they can never relax a
// known requirement.
func (r Requirement) Rank() int {
	if n, ok := requirementRank[r]; ok {
		return n
	}
	return len(requirementRank)
}

// MoreRestrictive returns the stricter of a and b.
func MoreRestrictive(a, b Requirement) Requirement {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ActionKind enumerates every page action the tool can request.
type ActionKind string

const (
	ActionNavigate     ActionKind = "navigate"
	ActionReadPage     ActionKind = "read_page"
	ActionScreenshot   ActionKind = "screenshot"
	ActionExtract      ActionKind = "extract"
	ActionFillForm     ActionKind = "fill_form"
	ActionClick        ActionKind = "click"
	ActionSelectOption ActionKind = "select_option"
	ActionUploadFile   ActionKind = "upload_file"
	ActionLogin        ActionKind = "login"
	ActionSubmitCreds  ActionKind = "submit_credentials"
	ActionUseVault     ActionKind = "use_vault"
	ActionDelete       ActionKind = "delete"
	ActionPurchase     ActionKind = "purchase"
	ActionTransfer     ActionKind = "transfer"
	ActionSendMessage  ActionKind = "send_message"
	ActionChangeSettings ActionKind = "change_settings"
)

var actionTiers = map[ActionKind]Tier{
	ActionNavigate:     TierReadOnly,
	ActionReadPage:     TierReadOnly,
	ActionScreenshot:   TierReadOnly,
	ActionExtract:      TierReadOnly,
	ActionFillForm:     TierFormFill,
	ActionClick:        TierFormFill,
	ActionSelectOption: TierFormFill,
	ActionUploadFile:   TierFormFill,
	ActionLogin:        TierAuthentication,
	ActionSubmitCreds:  TierAuthentication,
	ActionUseVault:     TierAuthentication,
	ActionDelete:       TierDestructive,
	ActionPurchase:     TierDestructive,
	ActionTransfer:     TierDestructive,
	ActionSendMessage:  TierDestructive,
	ActionChangeSettings: TierDestructive,
}

// ClassifyAction maps an action name to its risk tier. Names that are not in
// the catalog classify as form_fill, never read_only, so an unknown action
// cannot slip past approval.
func ClassifyAction(name string) Tier {
	if t, ok := actionTiers[ActionKind(name)]; ok {
		return t
	}
	return TierFormFill
}

// BaselineRequirement returns the approval requirement a tier carries before
// any site override is applied.
func BaselineRequirement(t Tier) Requirement {
	switch t {
	case TierReadOnly:
		return RequireNone
	case TierFormFill:
		return RequirePrompt
	case TierAuthentication:
		return RequireAlways
	case TierDestructive:
		return RequireTwoFactor
	default:
		return RequireTwoFactor
	}
}

// KnownActions returns the full action catalog, for help output.
func KnownActions() []ActionKind {
	out := make([]ActionKind, 0, len(actionTiers))
	for k := range actionTiers {
		out = append(out, k)
	}
	return out
}
