package tapx

import "errors"

var (
	ErrAuthError      = errors.New("auth error")
	ErrClosedInFlight = errors.New("connection closed with operation in flight")
)

var ErrProtocol = errors.New("protocol error")

type protocolError struct {
	message string
}

func (e protocolError) Error() string {
	return "protocol error: " + e.message
}

func (e protocolError) Unwrap() error {
	return ErrProtocol
}

// ErrFraming indicates the byte stream could not be framed into packets.
// Framing errors are terminal for the connection since the offsets of
// any subsequent packets cannot be trusted.
var ErrFraming = errors.New("framing error")

type framingError struct {
	message string
}

func (e framingError) Error() string {
	return "framing error: " + e.message
}

func (e framingError) Unwrap() error {
	return ErrFraming
}

type serverAuthError struct {
	message string
}

func (e serverAuthError) Error() string {
	return "auth error: " + e.message
}

func (e serverAuthError) Unwrap() error {
	return ErrAuthError
}
