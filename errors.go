package gotap

import (
	"errors"
	"fmt"

	"github.com/couchbaselabs/gotap/tapx"
)

var (
	ErrAuthenticationFailure = tapx.ErrAuthError
	ErrInvalidFraming        = tapx.ErrFraming
)

var (
	ErrStillConnected = errors.New("already connected")
	ErrClosed         = errors.New("already closed")
)

type contextualError struct {
	Message string
	Cause   error
}

func (e contextualError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
}

func (e contextualError) Unwrap() error {
	return e.Cause
}
