package workflow

import (
	"fmt"
	"strings"
)

// NextAction decides what happens after a transfer completes or fails.
type NextAction string

const (
	NextActionContinue NextAction = "continue"
	NextActionPause    NextAction = "pause"
	NextActionQuit     NextAction = "quit"
)

// ParseNextAction accepts continue, pause, or quit in any case.
func ParseNextAction(value string) (NextAction, error) {
	switch action := NextAction(strings.ToLower(strings.TrimSpace(value))); action {
	case NextActionContinue, NextActionPause, NextActionQuit:
		return action, nil
	case "":
		return NextActionContinue, nil
	default:
		return "", fmt.Errorf("%w: next action %q", ErrInvalidArgument, value)
	}
}
