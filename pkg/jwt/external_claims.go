package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/identity"
)

// ExternalClaims represents claims from the external account system.
// The external token carries an int user_id which is converted
// to a participant id via identity.Actor.
type ExternalClaims struct {
	UserId int64  `json:"user_id"`
	Role   string `json:"role,omitempty"` // "agent" or "visitor". Falls back to configured default.
	SiteId string `json:"site_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseExternalToken parses an external system's JWT token and converts it
// to the native Claims using Actor-based ID mapping.
//
// Parameters:
//   - tokenString: the raw JWT token from the external system
//   - secret: the signing secret of the external system
//   - defaultRole: fallback role when the token doesn't carry one
func ParseExternalToken(tokenString, secret, defaultRole string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExternalClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	extClaims, ok := token.Claims.(*ExternalClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}

	// Determine role: prefer token's own role, fall back to config default
	role := identity.RoleType(extClaims.Role)
	if extClaims.Role == "" {
		role = identity.RoleType(defaultRole)
	}

	actor := identity.Actor{Id: extClaims.UserId, Role: role}
	participantId, err := actor.ToParticipantId()
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	return &Claims{
		ParticipantId:    participantId,
		Role:             string(role),
		SiteId:           extClaims.SiteId,
		RegisteredClaims: extClaims.RegisteredClaims,
	}, nil
}
