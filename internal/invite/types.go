package invite

import (
	"errors"
	"time"
)

// Link is a single-use invitation that pre-authorizes creation of exactly
// one object. The shared password travels with the link so whoever redeems
// it can protect the object without out-of-band coordination.
type Link struct {
	Token     string     `json:"token"`
	Label     string     `json:"label"`
	Password  string     `json:"-"`
	MaxUses   int        `json:"maxUses"`
	Uses      int        `json:"uses"`
	ObjectID  string     `json:"objectId,omitempty"`
	Protected bool       `json:"protected"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"` // nil = never expires
	CreatedAt time.Time  `json:"createdAt"`
}

// Common errors
var (
	ErrLinkNotFound  = errors.New("invite link not found")
	ErrLinkExpired   = errors.New("invite link has expired")
	ErrLinkExhausted = errors.New("invite link has already been used")
)

// IsExpired checks if the link has expired
func (l *Link) IsExpired() bool {
	if l.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*l.ExpiresAt)
}

// Exhausted reports whether the link's use budget is spent.
func (l *Link) Exhausted() bool {
	return l.Uses >= l.MaxUses
}

// CheckResult is the non-consuming pre-flight view of a link.
type CheckResult struct {
	Valid    bool   `json:"valid"`
	Label    string `json:"label,omitempty"`
	Password string `json:"password,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
