package dispatch

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewBaseToken returns a fresh contact-level token.
func NewBaseToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DeriveToken returns the token for one target of a contact. Event-wide
// targets use the base token as is; ceremony targets append the ceremony id
// and the target's ordinal, keeping every row unique while still traceable to
// the contact-level base.
func DeriveToken(base, ceremonyID string, ordinal int) string {
	if ceremonyID == "" {
		return base
	}
	return base + "-" + ceremonyID + "-" + strconv.Itoa(ordinal)
}
