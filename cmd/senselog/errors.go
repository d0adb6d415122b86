package main

import (
	"errors"

	"github.com/srg/senselog/internal/link"
)

// FormatUserError turns terminal errors into operator-friendly messages.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, link.ErrDiscoveryTimeout):
		return err.Error() + " - is the sensor powered on and in range?"
	case errors.Is(err, link.ErrLinkLost):
		return err.Error() + " - buffered readings were persisted before exit"
	default:
		return err.Error()
	}
}
