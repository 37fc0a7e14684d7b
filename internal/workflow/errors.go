package workflow

import "errors"

var (
	// ErrNotRunning is returned by commands issued before Start or after Stop.
	ErrNotRunning = errors.New("workflow not running")
	// ErrInvalidArgument reports a malformed command argument.
	ErrInvalidArgument = errors.New("invalid argument")

	errCaptchaTimeout  = errors.New("captcha response timed out")
	errSettingsTimeout = errors.New("settings response timed out")
)
