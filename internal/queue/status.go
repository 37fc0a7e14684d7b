package queue

import (
	"strconv"
	"strings"
)

// Status represents the lifecycle of a transfer or package.
type Status string

const (
	StatusPaused                   Status = "paused"
	StatusQueued                   Status = "queued"
	StatusConnecting               Status = "connecting"
	StatusDownloading              Status = "downloading"
	StatusWaitingInactive          Status = "waiting_inactive"
	StatusCompleted                Status = "completed"
	StatusCanceling                Status = "canceling"
	StatusCanceled                 Status = "canceled"
	StatusCanceledAndDeleted       Status = "canceled_and_deleted"
	StatusFailed                   Status = "failed"
	StatusAwaitingCaptchaResponse  Status = "awaiting_captcha_response"
	StatusAwaitingSettingsResponse Status = "awaiting_settings_response"
)

var transferStatuses = []Status{
	StatusPaused,
	StatusQueued,
	StatusConnecting,
	StatusDownloading,
	StatusWaitingInactive,
	StatusCompleted,
	StatusCanceling,
	StatusCanceled,
	StatusCanceledAndDeleted,
	StatusFailed,
	StatusAwaitingCaptchaResponse,
	StatusAwaitingSettingsResponse,
}

var packageStatuses = map[Status]struct{}{
	StatusPaused:             {},
	StatusQueued:             {},
	StatusDownloading:        {},
	StatusCompleted:          {},
	StatusCanceling:          {},
	StatusCanceled:           {},
	StatusCanceledAndDeleted: {},
	StatusFailed:             {},
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range transferStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// ValidFor reports whether the status may be held by a node of the given kind.
func (s Status) ValidFor(kind Kind) bool {
	switch kind {
	case KindTransfer:
		_, ok := ParseStatus(string(s))
		return ok
	case KindPackage:
		_, ok := packageStatuses[s]
		return ok
	default:
		return s == ""
	}
}

// IsActive reports whether a transfer in this status holds a concurrency slot.
// Canceling is included: the slot is held until the engine unwinds.
func (s Status) IsActive() bool {
	switch s {
	case StatusConnecting,
		StatusDownloading,
		StatusAwaitingCaptchaResponse,
		StatusAwaitingSettingsResponse,
		StatusCanceling:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends the node's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusCanceledAndDeleted:
		return true
	default:
		return false
	}
}

// Label is a human-readable form of the status.
func (s Status) Label() string {
	switch s {
	case StatusWaitingInactive:
		return "waiting"
	case StatusCanceledAndDeleted:
		return "canceled and deleted"
	case StatusAwaitingCaptchaResponse:
		return "awaiting captcha response"
	case StatusAwaitingSettingsResponse:
		return "awaiting settings response"
	default:
		return string(s)
	}
}

// Aggregate derives a package status from its children. A package whose
// cancel was requested stays Canceling until every child is terminal.
func Aggregate(children []Status, cancelRequested bool) Status {
	if len(children) == 0 {
		return StatusCanceled
	}
	var active, canceling, failed, queued, completed, canceled, deleted int
	for _, s := range children {
		switch s {
		case StatusCanceling:
			canceling++
		case StatusFailed:
			failed++
		case StatusQueued, StatusWaitingInactive:
			queued++
		case StatusCompleted:
			completed++
		case StatusCanceled:
			canceled++
		case StatusCanceledAndDeleted:
			deleted++
		default:
			if s.IsActive() {
				active++
			}
		}
	}
	total := len(children)
	terminal := completed + canceled + deleted
	switch {
	case cancelRequested && terminal < total:
		return StatusCanceling
	case active > 0:
		return StatusDownloading
	case canceling > 0:
		return StatusCanceling
	case terminal == total:
		if completed == total {
			return StatusCompleted
		}
		if deleted > 0 {
			return StatusCanceledAndDeleted
		}
		return StatusCanceled
	case failed > 0:
		return StatusFailed
	case queued > 0:
		return StatusQueued
	default:
		return StatusPaused
	}
}

// Priority ranks transfers for admission; lower values are served first.
type Priority int

const (
	PriorityHighest Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityLowest
)

var priorityNames = [...]string{"highest", "high", "normal", "low", "lowest"}

// Priorities returns the bands from Highest to Lowest.
func Priorities() []Priority {
	return []Priority{PriorityHighest, PriorityHigh, PriorityNormal, PriorityLow, PriorityLowest}
}

func (p Priority) Valid() bool {
	return p >= PriorityHighest && p <= PriorityLowest
}

func (p Priority) String() string {
	if !p.Valid() {
		return strconv.Itoa(int(p))
	}
	return priorityNames[p]
}

// ParsePriority accepts a band name ("high") or its number ("1").
func ParsePriority(value string) (Priority, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for i, name := range priorityNames {
		if name == value {
			return Priority(i), true
		}
	}
	n, err := strconv.Atoi(value)
	if err != nil || !Priority(n).Valid() {
		return 0, false
	}
	return Priority(n), true
}
