// Package token mints and validates the per-signatory signing-link tokens
// embedded in invitation and reminder emails.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningClaims ties a link to one signatory on one document.
type SigningClaims struct {
	DocumentID  string `json:"documentId"`
	SignatoryID string `json:"signatoryId"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// Manager signs and parses signing-link tokens with a shared HS256 secret.
type Manager struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

func NewManager(secret, baseURL string) *Manager {
	return &Manager{
		secret:  []byte(secret),
		baseURL: baseURL,
		ttl:     14 * 24 * time.Hour,
	}
}

// SigningLink returns the full URL a signatory follows to open their
// signing session.
func (m *Manager) SigningLink(documentID, signatoryID uuid.UUID, email string) (string, error) {
	claims := SigningClaims{
		DocumentID:  documentID.String(),
		SignatoryID: signatoryID.String(),
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return m.baseURL + "/sign/" + signed, nil
}

// Validate parses a token string back into its claims.
func (m *Manager) Validate(tokenStr string) (*SigningClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SigningClaims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SigningClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
