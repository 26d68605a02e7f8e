package waithook

import (
	"errors"
	"fmt"
)

// Error returned when Connect is called on a started instance.
var ErrAlreadyStarted = errors.New("waithook connection already started")

// Error returned when a received message is not a valid webhook payload.
type MessageDecodeError struct {
	// Raw message
	Message string
	// Embedded error
	Err error
}

func (err MessageDecodeError) Error() string {
	return fmt.Sprintf("failed to decode webhook message: %v", err.Err)
}

func (err MessageDecodeError) Unwrap() error {
	return err.Err
}
