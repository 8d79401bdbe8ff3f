package handler

import (
	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/deskline/internal/middleware"
	"github.com/mbeoliero/deskline/internal/service"
)

// participantOf returns the authenticated HTTP caller, nil if absent.
// HTTP callers hold no live connection.
func participantOf(c *app.RequestContext) *service.Participant {
	id := middleware.GetParticipantId(c)
	if id == "" {
		return nil
	}
	return &service.Participant{Id: id, Role: middleware.GetRole(c)}
}
