package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrRemote        = errors.New("remote server error")
)

var markers = []error{ErrExternalTool, ErrValidation, ErrConfiguration, ErrNotFound, ErrTimeout, ErrTransient, ErrRemote}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Summary returns the error text without the leading marker, suitable for a
// transfer's error string.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return strings.TrimPrefix(msg, marker.Error()+": ")
		}
	}
	return msg
}

// Hint maps an error to the error_hint logged alongside it.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "check the URL; the server no longer has the file"
	case errors.Is(err, ErrRemote):
		return "the server refused the request; retry later or check request headers"
	case errors.Is(err, ErrTimeout):
		return "retry the transfer or raise transfers.request_timeout"
	case errors.Is(err, ErrConfiguration):
		return "fix the configuration and restart dlqd"
	case errors.Is(err, ErrValidation):
		return "correct the transfer properties and queue it again"
	case errors.Is(err, ErrExternalTool):
		return "check transfers.custom_command"
	default:
		return "retry the transfer; check network connectivity"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
