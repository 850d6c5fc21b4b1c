package invite

import (
	"context"
)

// Store defines the interface for invite link persistence
type Store interface {
	CreateLink(ctx context.Context, link *Link) error
	GetLink(ctx context.Context, token string) (*Link, error)
	ListLinks(ctx context.Context) ([]*Link, error)
	UpdateLabel(ctx context.Context, token, label string) error
	// BindLink atomically consumes one use and records the bound object.
	// Fails ErrLinkExhausted if another binder won the race.
	BindLink(ctx context.Context, token, objectID string, protected bool) error
	// ResetLink releases a consumed use and clears the binding.
	ResetLink(ctx context.Context, token string) error
	// ClearObject unbinds whichever link points at the object, if any.
	ClearObject(ctx context.Context, objectID string) error
	DeleteLink(ctx context.Context, token string) error
	DeleteExpiredLinks(ctx context.Context) (int64, error)
}
