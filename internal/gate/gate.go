// Package gate implements the optional shared-secret check guarding
// upload-mutating operations.
package gate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Gate holds the shared secret configured at process start. An absent
// or malformed secret disables the gate entirely.
type Gate struct {
	hash         []byte
	secretLength int
	tokenSecret  []byte
	tokenTTL     time.Duration
}

// New builds a gate from the raw configured secret. The secret is
// normalized by stripping non-digit characters; a result whose length
// falls outside [minDigits, maxDigits] disables the gate. tokenSecret
// signs the credential tokens issued after a successful verify.
func New(secret string, minDigits, maxDigits int, tokenSecret string, tokenTTL time.Duration) *Gate {
	g := &Gate{
		tokenSecret: []byte(tokenSecret),
		tokenTTL:    tokenTTL,
	}

	normalized := normalizeSecret(secret)
	if len(normalized) < minDigits || len(normalized) > maxDigits {
		if secret != "" {
			log.Warn().
				Int("digits", len(normalized)).
				Int("min", minDigits).
				Int("max", maxDigits).
				Msg("upload secret rejected, gate disabled")
		}
		return g
	}

	// bcrypt hashes both sides to a fixed length, so comparison time
	// does not vary with candidate length or content.
	hash, err := bcrypt.GenerateFromPassword([]byte(normalized), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash upload secret, gate disabled")
		return g
	}

	g.hash = hash
	g.secretLength = len(normalized)
	log.Info().Int("secret_length", g.secretLength).Msg("upload gate enabled")
	return g
}

// Required reports whether the gate is active.
func (g *Gate) Required() bool {
	return g.hash != nil
}

// SecretLength returns the length of the configured secret, or 0 when
// the gate is disabled. The length is safe to expose so clients can
// size their prompt; the secret itself never is.
func (g *Gate) SecretLength() int {
	return g.secretLength
}

// Verify compares a candidate against the secret in fixed time. A
// disabled gate accepts everything.
func (g *Gate) Verify(candidate string) bool {
	if !g.Required() {
		return true
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(candidate)) == nil
}

// IssueToken returns a signed credential token for a client that
// passed Verify, suitable for a session cookie.
func (g *Gate) IssueToken() (string, error) {
	claims := jwt.MapClaims{
		"sub": "upload-gate",
		"exp": time.Now().Add(g.tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.tokenSecret)
}

// ValidateToken checks a previously issued credential token.
func (g *Gate) ValidateToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.tokenSecret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid credential token: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid credential token")
	}
	return nil
}

// TokenTTL returns the lifetime of issued credential tokens.
func (g *Gate) TokenTTL() time.Duration {
	return g.tokenTTL
}

// normalizeSecret strips every non-digit character from the raw value.
func normalizeSecret(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
