package security

import (
	"fmt"

	"github.com/nanoagent/nanoagent/internal/model"
)

// AuthorizeError names both the required and the held level, so the
// server-side operator can see exactly why a command was refused.
type AuthorizeError struct {
	Kind     model.CommandKind
	Required model.PermissionLevel
	Held     model.PermissionLevel
}

func (e *AuthorizeError) Error() string {
	return fmt.Sprintf("permission denied for %s: Required level: %d, your level: %d", e.Kind, e.Required, e.Held)
}

// Authorize permits kind iff held >= RequiredLevel(kind); the check is
// monotone in the held level. It returns nil when the command is
// permitted, or an *AuthorizeError naming both levels otherwise.
func Authorize(kind model.CommandKind, held model.PermissionLevel) error {
	required := model.RequiredLevel(kind)
	if held >= required {
		return nil
	}
	return &AuthorizeError{Kind: kind, Required: required, Held: held}
}
