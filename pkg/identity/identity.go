package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mbeoliero/deskline/pkg/constant"
)

const (
	PrefixLength = 4

	visitorPrefix = "v___"
	agentPrefix   = "ag__"
)

// RoleType defines the participant role in a conversation.
type RoleType string

const (
	RoleVisitor RoleType = constant.RoleVisitor
	RoleAgent   RoleType = constant.RoleAgent
)

// Valid reports whether r is a known role.
func (r RoleType) Valid() bool {
	return r == RoleVisitor || r == RoleAgent
}

// Actor represents an external identity that maps to a participant id.
type Actor struct {
	Id   int64
	Role RoleType
}

// ToParticipantId converts an agent Actor to the participant id string.
//
//	Actor{Id: 7, Role: RoleAgent}.ToParticipantId()  => "ag__7"
//
// Visitors carry opaque ids and are built with VisitorId instead.
func (a *Actor) ToParticipantId() (string, error) {
	switch a.Role {
	case RoleAgent:
		return fmt.Sprintf("%s%d", agentPrefix, a.Id), nil
	case RoleVisitor:
		return VisitorId(strconv.FormatInt(a.Id, 10)), nil
	default:
		return "", fmt.Errorf("failed to transfer actor to participant id, type: %s", a.Role)
	}
}

// VisitorId builds a visitor participant id from an opaque token.
func VisitorId(raw string) string {
	return visitorPrefix + raw
}

// RoleOf returns the role encoded in a participant id.
func RoleOf(participantId string) (RoleType, error) {
	if len(participantId) < PrefixLength+1 {
		return "", fmt.Errorf("invalid participant id: %q", participantId)
	}
	switch participantId[:PrefixLength] {
	case visitorPrefix:
		return RoleVisitor, nil
	case agentPrefix:
		return RoleAgent, nil
	default:
		return "", fmt.Errorf("unknown prefix: %q", participantId[:PrefixLength])
	}
}

// FromParticipantId parses an agent participant id back into an Actor.
func (a *Actor) FromParticipantId(participantId string) error {
	if a == nil {
		return fmt.Errorf("actor is nil")
	}
	role, err := RoleOf(participantId)
	if err != nil {
		return err
	}
	if role != RoleAgent {
		return fmt.Errorf("visitor ids are opaque: %q", participantId)
	}
	idStr := strings.TrimPrefix(participantId, agentPrefix)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id: %q", idStr)
	}
	a.Role = role
	a.Id = id
	return nil
}
