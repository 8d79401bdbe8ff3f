package service

import (
	"context"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/pkg/identity"
)

// Authorizer is the capability check consulted before acting on a conversation
type Authorizer interface {
	CanActOnConversation(ctx context.Context, actorId string, conv *entity.Conversation) bool
}

// SiteAuthorizer lets visitors act only on their own conversations and agents
// on the conversations of the sites they are assigned to. An agent without an
// entry in agentSites may act on every site.
type SiteAuthorizer struct {
	agentSites map[string]map[string]struct{}
}

// NewSiteAuthorizer creates a SiteAuthorizer from agentId -> siteIds
func NewSiteAuthorizer(agentSites map[string][]string) *SiteAuthorizer {
	a := &SiteAuthorizer{agentSites: make(map[string]map[string]struct{}, len(agentSites))}
	for agentId, sites := range agentSites {
		set := make(map[string]struct{}, len(sites))
		for _, s := range sites {
			set[s] = struct{}{}
		}
		a.agentSites[agentId] = set
	}
	return a
}

func (a *SiteAuthorizer) CanActOnConversation(ctx context.Context, actorId string, conv *entity.Conversation) bool {
	if conv == nil {
		return false
	}
	role, err := identity.RoleOf(actorId)
	if err != nil {
		return false
	}

	switch role {
	case identity.RoleVisitor:
		return conv.VisitorId == actorId
	case identity.RoleAgent:
		sites, ok := a.agentSites[actorId]
		if !ok {
			return true
		}
		_, ok = sites[conv.SiteId]
		return ok
	}
	return false
}
