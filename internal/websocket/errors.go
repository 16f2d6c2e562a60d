package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrWriteBufferFull  = errors.New("connection write buffer is full")
)
