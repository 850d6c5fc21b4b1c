package download

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TokenTTL is how long an issued token stays redeemable.
const TokenTTL = 60 * time.Second

var (
	// ErrTokenNotFound indicates the token is unknown, already redeemed, or expired
	ErrTokenNotFound = errors.New("download token is invalid or has expired")

	// ErrAlreadyDownloaded indicates the file was already fetched from a
	// single-view object
	ErrAlreadyDownloaded = errors.New("file has already been downloaded")
)

// Grant carries everything needed to serve one file transfer: the resolved
// path is captured at issue time so redemption never re-walks the object
// directory.
type Grant struct {
	ObjectID string
	Filename string
	Path     string
	Size     int64
	Once     bool
}

type token struct {
	grant   Grant
	expires time.Time
}

// Issuer hands out short-lived single-use download tokens. Tokens are held
// in memory only: a restart invalidates outstanding tokens, which is
// acceptable at a 60 second horizon. For single-view objects the issuer
// additionally remembers which files have already been served, so each
// file of a consumed object transfers at most once.
type Issuer struct {
	mu         sync.Mutex
	tokens     map[string]token
	downloaded map[string]map[string]bool // object id -> filenames already served
	now        func() time.Time
}

// NewIssuer creates an empty token issuer.
func NewIssuer() *Issuer {
	return &Issuer{
		tokens:     make(map[string]token),
		downloaded: make(map[string]map[string]bool),
		now:        time.Now,
	}
}

// Issue mints a token for the grant. For single-view grants a file that
// was already served fails with ErrAlreadyDownloaded. Expired tokens are
// collected opportunistically here to bound memory growth.
func (i *Issuer) Issue(grant Grant) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.purgeLocked()

	if grant.Once && i.downloaded[grant.ObjectID][grant.Filename] {
		return "", ErrAlreadyDownloaded
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate download token: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(raw)

	i.tokens[value] = token{grant: grant, expires: i.now().Add(TokenTTL)}
	return value, nil
}

// Redeem consumes a token. The token is removed before the caller streams
// a single byte, so a racing duplicate redemption fails even while the
// first transfer is still in flight. Single-view grants burn the filename
// here.
func (i *Issuer) Redeem(value string) (Grant, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.purgeLocked()

	tok, ok := i.tokens[value]
	if !ok {
		return Grant{}, ErrTokenNotFound
	}
	delete(i.tokens, value)

	if tok.grant.Once {
		if i.downloaded[tok.grant.ObjectID] == nil {
			i.downloaded[tok.grant.ObjectID] = make(map[string]bool)
		}
		i.downloaded[tok.grant.ObjectID][tok.grant.Filename] = true
	}

	return tok.grant, nil
}

// Forget drops all state for an object: outstanding tokens and the
// downloaded set. Called when the object is destroyed.
func (i *Issuer) Forget(objectID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.downloaded, objectID)
	for value, tok := range i.tokens {
		if tok.grant.ObjectID == objectID {
			delete(i.tokens, value)
		}
	}
}

// Outstanding returns the number of live tokens.
func (i *Issuer) Outstanding() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.purgeLocked()
	return len(i.tokens)
}

// purgeLocked drops expired tokens. Callers hold the mutex.
func (i *Issuer) purgeLocked() {
	now := i.now()
	for value, tok := range i.tokens {
		if now.After(tok.expires) {
			delete(i.tokens, value)
		}
	}
}
