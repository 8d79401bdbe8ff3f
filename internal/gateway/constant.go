package gateway

import "time"

// Inbound commands
const (
	CmdAuthenticate         = "authenticate"
	CmdJoinConversation     = "join-conversation"
	CmdLeaveConversation    = "leave-conversation"
	CmdSendMessage          = "send-message"
	CmdStartTyping          = "start-typing"
	CmdStopTyping           = "stop-typing"
	CmdMarkRead             = "mark-read"
	CmdTransferConversation = "transfer-conversation"
	CmdCloseConversation    = "close-conversation"
	CmdRateConversation     = "rate-conversation"
	CmdEditMessage          = "edit-message"
	CmdDeleteMessage        = "delete-message"
	CmdSetStatus            = "set-status"
	CmdGetMessages          = "get-messages"
)

// Defaults used when the websocket config leaves a value unset
const (
	// DefaultWriteWait is time allowed to write a message to the peer
	DefaultWriteWait = 10 * time.Second

	// DefaultPongWait is time allowed to read the next pong message from the peer
	DefaultPongWait = 30 * time.Second

	// DefaultPingPeriod is period between pings. Must be less than PongWait
	DefaultPingPeriod = (DefaultPongWait * 9) / 10

	// DefaultMaxMessageSize is maximum message size allowed from peer
	DefaultMaxMessageSize = 51200

	// DefaultWriteChannelSize is the per-connection outbound queue length
	DefaultWriteChannelSize = 256
)
