package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndRedeem(t *testing.T) {
	issuer := NewIssuer()

	grant := Grant{
		ObjectID: "abc-defg-hij",
		Filename: "data.bin",
		Path:     "/data/files/abc-defg-hij/data.bin",
		Size:     128,
	}
	token, err := issuer.Issue(grant)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, err := issuer.Redeem(token)
	require.NoError(t, err)
	assert.Equal(t, grant, got)

	// a token redeems exactly once
	_, err = issuer.Redeem(token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRedeemUnknownToken(t *testing.T) {
	issuer := NewIssuer()

	_, err := issuer.Redeem("no-such-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenExpiry(t *testing.T) {
	issuer := NewIssuer()
	current := time.Now()
	issuer.now = func() time.Time { return current }

	token, err := issuer.Issue(Grant{ObjectID: "abc-defg-hij", Filename: "data.bin"})
	require.NoError(t, err)

	current = current.Add(TokenTTL + time.Second)
	_, err = issuer.Redeem(token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.Zero(t, issuer.Outstanding())
}

func TestSingleViewGrants(t *testing.T) {
	issuer := NewIssuer()
	grant := Grant{ObjectID: "abc-defg-hij", Filename: "data.bin", Once: true}

	// issuing twice before redemption is allowed; the burn happens on redeem
	first, err := issuer.Issue(grant)
	require.NoError(t, err)
	_, err = issuer.Issue(grant)
	require.NoError(t, err)

	_, err = issuer.Redeem(first)
	require.NoError(t, err)

	// after one successful transfer the file cannot be granted again
	_, err = issuer.Issue(grant)
	assert.ErrorIs(t, err, ErrAlreadyDownloaded)

	// other files of the same object are unaffected
	_, err = issuer.Issue(Grant{ObjectID: "abc-defg-hij", Filename: "other.bin", Once: true})
	assert.NoError(t, err)

	// same filename on another object is unaffected
	_, err = issuer.Issue(Grant{ObjectID: "zzz-zzzz-zzz", Filename: "data.bin", Once: true})
	assert.NoError(t, err)
}

func TestForget(t *testing.T) {
	issuer := NewIssuer()

	token, err := issuer.Issue(Grant{ObjectID: "abc-defg-hij", Filename: "data.bin", Once: true})
	require.NoError(t, err)
	_, err = issuer.Redeem(token)
	require.NoError(t, err)
	keep, err := issuer.Issue(Grant{ObjectID: "zzz-zzzz-zzz", Filename: "data.bin"})
	require.NoError(t, err)

	issuer.Forget("abc-defg-hij")

	// the downloaded set is cleared with the object
	_, err = issuer.Issue(Grant{ObjectID: "abc-defg-hij", Filename: "data.bin", Once: true})
	assert.NoError(t, err)

	// unrelated tokens survive
	_, err = issuer.Redeem(keep)
	assert.NoError(t, err)
}
