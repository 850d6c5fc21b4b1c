package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultMaxUses is the use budget of a freshly minted link.
const DefaultMaxUses = 1

// Manager handles invite link operations
type Manager interface {
	// Create mints a link. expiresIn of 0 means the link never expires.
	Create(ctx context.Context, label string, expiresIn int64) (*Link, error)
	Get(ctx context.Context, token string) (*Link, error)
	List(ctx context.Context) ([]*Link, error)
	UpdateLabel(ctx context.Context, token, label string) error
	// ValidateForCreation vets a link for redeeming: it must exist, be
	// unexpired and have budget left. Returns the link so the caller can
	// use its shared password.
	ValidateForCreation(ctx context.Context, token string) (*Link, error)
	// Bind consumes the link's budget for the given object. Exactly one
	// concurrent binder succeeds.
	Bind(ctx context.Context, token, objectID string, protected bool) error
	// Reset releases the binding after a failed downstream step.
	Reset(ctx context.Context, token string) error
	// Check is the non-consuming pre-flight probe.
	Check(ctx context.Context, token string) (*CheckResult, error)
	// Release unbinds whichever link points at a destroyed object.
	Release(ctx context.Context, objectID string) error
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// LinkManager implements Manager interface
type LinkManager struct {
	store Store
}

// NewManager creates a new invite link manager
func NewManager(store Store) Manager {
	return &LinkManager{store: store}
}

// Create mints a new link with a fresh token and shared password
func (m *LinkManager) Create(ctx context.Context, label string, expiresIn int64) (*Link, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite token: %w", err)
	}
	password, err := generatePassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate shared password: %w", err)
	}

	var expiresAt *time.Time
	if expiresIn > 0 {
		expiry := time.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
		expiresAt = &expiry
	}

	link := &Link{
		Token:     token,
		Label:     label,
		Password:  password,
		MaxUses:   DefaultMaxUses,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.CreateLink(ctx, link); err != nil {
		return nil, err
	}

	return link, nil
}

func (m *LinkManager) Get(ctx context.Context, token string) (*Link, error) {
	return m.store.GetLink(ctx, token)
}

func (m *LinkManager) List(ctx context.Context) ([]*Link, error) {
	return m.store.ListLinks(ctx)
}

func (m *LinkManager) UpdateLabel(ctx context.Context, token, label string) error {
	return m.store.UpdateLabel(ctx, token, label)
}

// ValidateForCreation vets a link before the object is created
func (m *LinkManager) ValidateForCreation(ctx context.Context, token string) (*Link, error) {
	link, err := m.store.GetLink(ctx, token)
	if err != nil {
		return nil, err
	}

	if link.IsExpired() {
		return nil, ErrLinkExpired
	}
	if link.Exhausted() {
		return nil, ErrLinkExhausted
	}

	return link, nil
}

func (m *LinkManager) Bind(ctx context.Context, token, objectID string, protected bool) error {
	return m.store.BindLink(ctx, token, objectID, protected)
}

func (m *LinkManager) Reset(ctx context.Context, token string) error {
	return m.store.ResetLink(ctx, token)
}

// Check reports link state without consuming anything
func (m *LinkManager) Check(ctx context.Context, token string) (*CheckResult, error) {
	link, err := m.store.GetLink(ctx, token)
	if err != nil {
		if err == ErrLinkNotFound {
			return &CheckResult{Valid: false, Reason: "link does not exist"}, nil
		}
		return nil, err
	}

	if link.IsExpired() {
		return &CheckResult{Valid: false, Reason: "link has expired"}, nil
	}
	if link.Exhausted() {
		return &CheckResult{Valid: false, Reason: "link has already been used"}, nil
	}

	return &CheckResult{Valid: true, Label: link.Label, Password: link.Password}, nil
}

func (m *LinkManager) Release(ctx context.Context, objectID string) error {
	return m.store.ClearObject(ctx, objectID)
}

func (m *LinkManager) Delete(ctx context.Context, token string) error {
	return m.store.DeleteLink(ctx, token)
}

func (m *LinkManager) DeleteExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredLinks(ctx)
}

// Helper functions

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func generatePassword() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
