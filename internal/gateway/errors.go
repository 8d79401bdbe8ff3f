package gateway

import "errors"

// Transport errors. Command failures use errcode.
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
)
