package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(secret string) *Gate {
	return New(secret, 4, 12, "test-token-secret", time.Hour)
}

func TestNewSecretNormalization(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		required bool
		length   int
	}{
		{name: "empty secret disables gate", secret: "", required: false},
		{name: "plain digits", secret: "4242", required: true, length: 4},
		{name: "digits with separators", secret: "42-42", required: true, length: 4},
		{name: "digits with letters stripped", secret: "pin4242code", required: true, length: 4},
		{name: "no digits disables gate", secret: "letters-only", required: false},
		{name: "too few digits disables gate", secret: "123", required: false},
		{name: "too many digits disables gate", secret: "1234567890123", required: false},
		{name: "max length accepted", secret: "123456789012", required: true, length: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(tt.secret)
			assert.Equal(t, tt.required, g.Required())
			assert.Equal(t, tt.length, g.SecretLength())
		})
	}
}

func TestVerify(t *testing.T) {
	g := newTestGate("4242")

	assert.True(t, g.Verify("4242"))
	assert.False(t, g.Verify("0000"))
	assert.False(t, g.Verify(""))
	assert.False(t, g.Verify("42420000000000000000"))
}

func TestVerifyDisabledGateAcceptsEverything(t *testing.T) {
	g := newTestGate("")

	assert.False(t, g.Required())
	assert.True(t, g.Verify("anything"))
	assert.True(t, g.Verify(""))
}

func TestTokenRoundTrip(t *testing.T) {
	g := newTestGate("4242")

	token, err := g.IssueToken()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, g.ValidateToken(token))
}

func TestTokenRejectedAcrossSecrets(t *testing.T) {
	issuer := New("4242", 4, 12, "secret-one", time.Hour)
	verifier := New("4242", 4, 12, "secret-two", time.Hour)

	token, err := issuer.IssueToken()
	require.NoError(t, err)

	assert.Error(t, verifier.ValidateToken(token))
}

func TestExpiredTokenRejected(t *testing.T) {
	g := New("4242", 4, 12, "test-token-secret", -time.Minute)

	token, err := g.IssueToken()
	require.NoError(t, err)

	assert.Error(t, g.ValidateToken(token))
}

func TestGarbageTokenRejected(t *testing.T) {
	g := newTestGate("4242")

	assert.Error(t, g.ValidateToken("not.a.token"))
	assert.Error(t, g.ValidateToken(""))
}
