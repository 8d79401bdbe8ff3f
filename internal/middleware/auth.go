package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/jwt"
	"github.com/mbeoliero/deskline/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// ParticipantIdKey is the context key for the participant id
	ParticipantIdKey = "participant_id"
	// RoleKey is the context key for the participant role
	RoleKey = "role"
	// SiteIdKey is the context key for the site the token was issued for
	SiteIdKey = "site_id"
)

// JWTAuth is the JWT authentication middleware. Native tokens are tried
// first, then external tokens when the verifier allows them.
func JWTAuth(verifier *jwt.Verifier) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenMissing)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		claims, err := verifier.Verify(strings.TrimPrefix(authHeader, BearerPrefix), "")
		if err != nil {
			response.Error(ctx, c, err)
			c.Abort()
			return
		}

		c.Set(ParticipantIdKey, claims.ParticipantId)
		c.Set(RoleKey, claims.Role)
		c.Set(SiteIdKey, claims.SiteId)

		c.Next(ctx)
	}
}

// GetParticipantId gets the participant id from context
func GetParticipantId(c *app.RequestContext) string {
	return c.GetString(ParticipantIdKey)
}

// GetRole gets the participant role from context
func GetRole(c *app.RequestContext) string {
	return c.GetString(RoleKey)
}

// GetSiteId gets the token's site id from context
func GetSiteId(c *app.RequestContext) string {
	return c.GetString(SiteIdKey)
}
