package jwt

import (
	"errors"

	"github.com/mbeoliero/deskline/pkg/errcode"
)

// ExternalOptions configures acceptance of tokens issued by the external account system
type ExternalOptions struct {
	Enabled     bool
	Secret      string
	DefaultRole string
}

// Verifier checks native tokens first, then falls back to external tokens if enabled
type Verifier struct {
	secret   string
	external ExternalOptions
}

// NewVerifier creates a Verifier
func NewVerifier(secret string, external ExternalOptions) *Verifier {
	return &Verifier{secret: secret, external: external}
}

// Verify parses token and, when expectedRole is not empty, checks the role it was issued for
func (v *Verifier) Verify(token, expectedRole string) (*Claims, error) {
	if token == "" {
		return nil, errcode.ErrTokenMissing
	}

	claims, err := ValidateToken(token, v.secret, expectedRole)
	if err == nil {
		return claims, nil
	}
	if !v.external.Enabled || errors.Is(err, errcode.ErrTokenMismatch) || errors.Is(err, errcode.ErrTokenExpired) {
		return nil, err
	}

	ext, extErr := ParseExternalToken(token, v.external.Secret, v.external.DefaultRole)
	if extErr != nil {
		return nil, err
	}
	if expectedRole != "" && ext.Role != expectedRole {
		return nil, errcode.ErrTokenMismatch
	}
	return ext, nil
}
