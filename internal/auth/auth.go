// Package auth decides who may talk to the bot: the owner, configured to see
// everything, and neighbors who prove themselves by sharing a contact whose
// phone is on the allow-list.
package auth

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Role is what a Telegram user is allowed to do.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleNeighbor Role = "neighbor"
	RoleUnknown  Role = "unknown"
)

// NormalizePhone reduces a phone number to E.164 so allow-list comparison is
// format-independent. Ukrainian local numbers (0XXXXXXXXX) get the +380
// country code.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "380"):
		return "+" + digits
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "+380" + digits[1:]
	default:
		return "+" + digits
	}
}

// Authorizer tracks which chat users have been granted a role. Grants are
// kept in memory; a neighbor re-shares their contact after a restart.
type Authorizer struct {
	ownerID int64
	allowed map[string]struct{}
	logger  *zap.Logger

	mu      sync.RWMutex
	granted map[int64]Role
}

func NewAuthorizer(ownerID int64, allowedPhones []string, logger *zap.Logger) *Authorizer {
	allowed := make(map[string]struct{}, len(allowedPhones))
	for _, p := range allowedPhones {
		if n := NormalizePhone(p); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &Authorizer{
		ownerID: ownerID,
		allowed: allowed,
		logger:  logger,
		granted: make(map[int64]Role),
	}
}

// RoleOf returns the caller's current role.
func (a *Authorizer) RoleOf(userID int64) Role {
	if userID == a.ownerID {
		return RoleOwner
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if role, ok := a.granted[userID]; ok {
		return role
	}
	return RoleUnknown
}

// RegisterContact grants neighbor access when the shared phone is on the
// allow-list. Returns the resulting role.
func (a *Authorizer) RegisterContact(userID int64, phone string) Role {
	if userID == a.ownerID {
		return RoleOwner
	}
	normalized := NormalizePhone(phone)
	if _, ok := a.allowed[normalized]; !ok {
		a.logger.Warn("contact rejected",
			zap.Int64("user_id", userID),
			zap.String("phone", normalized),
		)
		return RoleUnknown
	}

	a.mu.Lock()
	a.granted[userID] = RoleNeighbor
	a.mu.Unlock()

	a.logger.Info("neighbor registered", zap.Int64("user_id", userID))
	return RoleNeighbor
}

// IsOwner reports whether the user is the configured owner.
func (a *Authorizer) IsOwner(userID int64) bool {
	return userID == a.ownerID
}
