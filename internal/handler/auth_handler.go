package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/identity"
	"github.com/mbeoliero/deskline/pkg/jwt"
	"github.com/mbeoliero/deskline/pkg/response"
)

// SiteReader looks up sites
type SiteReader interface {
	GetSite(ctx context.Context, id string) (*entity.Site, error)
}

// AuthHandler issues visitor identities
type AuthHandler struct {
	sites       SiteReader
	secret      string
	expireHours int
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(sites SiteReader, secret string, expireHours int) *AuthHandler {
	return &AuthHandler{sites: sites, secret: secret, expireHours: expireHours}
}

// VisitorRequest asks for an anonymous visitor identity on a site
type VisitorRequest struct {
	SiteId string `json:"site_id"`
}

// VisitorResponse carries the new visitor identity
type VisitorResponse struct {
	ParticipantId string `json:"participant_id"`
	Token         string `json:"token"`
	ExpiresAt     int64  `json:"expires_at"`
}

// IssueVisitor handles anonymous visitor sign-in
func (h *AuthHandler) IssueVisitor(ctx context.Context, c *app.RequestContext) {
	var req VisitorRequest
	if err := c.BindAndValidate(&req); err != nil || req.SiteId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	site, err := h.sites.GetSite(ctx, req.SiteId)
	if err != nil {
		log.CtxError(ctx, "get site failed: site_id=%s, error=%v", req.SiteId, err)
		response.Error(ctx, c, errcode.ErrStoreUnavailable.Wrap(err))
		return
	}
	if site == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrSiteNotFound)
		return
	}
	if !site.IsActive() {
		response.ErrorWithCode(ctx, c, errcode.ErrSiteInactive)
		return
	}

	participantId := identity.VisitorId(uuid.New().String())
	token, err := jwt.GenerateToken(participantId, constant.RoleVisitor, site.Id, h.secret, h.expireHours)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &VisitorResponse{
		ParticipantId: participantId,
		Token:         token,
		ExpiresAt:     time.Now().Add(time.Duration(h.expireHours) * time.Hour).UnixMilli(),
	})
}
