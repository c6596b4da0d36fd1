package chrome

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrProtocolError    = errors.New("protocol error")
	ErrNoPage           = errors.New("no page target")
)

// ProtocolError is an error reply to a protocol command.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocolError }

// ExceptionError is a JavaScript exception thrown by an evaluated expression.
type ExceptionError struct {
	Text string
}

func (e *ExceptionError) Error() string {
	return "JS exception: " + e.Text
}
