package approval

import (
	"regexp"

	"github.com/pquerna/otp/totp"
)

var codeFormat = regexp.MustCompile(`^[0-9]{6,8}$`)

// verifyTwoFactor checks the second-factor code. The format check (6-8
// digits) always applies; when a TOTP secret is configured the code must also
// validate against it.
func (g *Gate) verifyTwoFactor(code string) bool {
	if !codeFormat.MatchString(code) {
		return false
	}
	if g.cfg.TOTPSecret != "" {
		return totp.Validate(code, g.cfg.TOTPSecret)
	}
	return true
}
