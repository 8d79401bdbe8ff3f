package constant

// Participant roles
const (
	RoleVisitor = "visitor"
	RoleAgent   = "agent"
)

// Conversation status
const (
	ConvStatusWaiting     = "waiting"
	ConvStatusActive      = "active"
	ConvStatusTransferred = "transferred"
	ConvStatusClosed      = "closed"
)

// Conversation priority
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Message types
const (
	MsgTypeText   = "text"
	MsgTypeFile   = "file"
	MsgTypeImage  = "image"
	MsgTypeVoice  = "voice"
	MsgTypeVideo  = "video"
	MsgTypeSystem = "system"
)

// Site status
const (
	SiteStatusActive    = "active"
	SiteStatusInactive  = "inactive"
	SiteStatusSuspended = "suspended"
)

// Presence status
const (
	StatusOffline = "offline"
	StatusOnline  = "online"
	StatusBusy    = "busy"
	StatusAway    = "away"
)

// Limits
const (
	MaxRatingScore    = 5
	MinRatingScore    = 1
	DefaultPreviewLen = 100
	MaxHistoryLimit   = 100
)

// IsValidPriority reports whether p is a known priority
func IsValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// IsValidMsgType reports whether t is a known message type
func IsValidMsgType(t string) bool {
	switch t {
	case MsgTypeText, MsgTypeFile, MsgTypeImage, MsgTypeVoice, MsgTypeVideo, MsgTypeSystem:
		return true
	}
	return false
}

// IsValidStatus reports whether s is a known presence status
func IsValidStatus(s string) bool {
	switch s {
	case StatusOffline, StatusOnline, StatusBusy, StatusAway:
		return true
	}
	return false
}

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyPresence = "presence:%s" // presence:{participant_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "deskline:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// RedisKeyPresence returns the prefixed presence key pattern
func RedisKeyPresence() string { return redisKeyPrefix + redisKeyPresence }
