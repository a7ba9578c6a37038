package jeedom

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSwitch is returned for a name the registry does not hold
	ErrUnknownSwitch = errors.New("unknown switch")

	// ErrInvalidPayload is matched by every *PayloadError
	ErrInvalidPayload = errors.New("jeedom returned a value that is not a number")
)

// TransportError is a failure talking to the Jeedom server: dial, DNS, timeout or an HTTP error status.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jeedom command [%s]: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PayloadError carries the body that could not be read as a JSON integer
type PayloadError struct {
	Command string
	Body    string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("jeedom command [%s]: %s: %q", e.Command, ErrInvalidPayload.Error(), e.Body)
}

func (e *PayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}
