// Package csrf issues and checks anti-forgery tokens bound to an action's
// signing domain.
package csrf

import (
	"strings"

	"github.com/marcus-qen/monfront/internal/shared/signing"
)

// TokenName is the input key that carries the token.
const TokenName = "_csrf_token"

// skipSegments are action name segments that never form a signing domain.
var skipSegments = map[string]bool{
	"popup":      true,
	"massupdate": true,
}

// Helper issues tokens for one session.
type Helper struct {
	signer *signing.Signer
}

// New returns a token helper keyed by the session secret.
func New(sessionSecret []byte) *Helper {
	return &Helper{signer: signing.NewSigner(sessionSecret)}
}

// Token returns the token for a signing domain.
func (h *Helper) Token(domain string) string {
	return h.signer.Sign("csrf", []byte(domain))
}

// TokenForAction returns the token an action expects, or "" when the action
// has no signing domain.
func (h *Helper) TokenForAction(action string) string {
	domain, ok := Domain(action)
	if !ok {
		return ""
	}
	return h.Token(domain)
}

// Check reports whether token is valid for domain.
func (h *Helper) Check(token, domain string) bool {
	if token == "" || domain == "" {
		return false
	}
	return h.signer.Valid("csrf", []byte(domain), token)
}

// Domain returns the signing domain of an action: its first dot-separated
// segment that is not a popup or mass-update marker.
func Domain(action string) (string, bool) {
	for _, segment := range strings.Split(action, ".") {
		if segment == "" {
			return "", false
		}
		if !skipSegments[segment] {
			return segment, true
		}
	}
	return "", false
}
