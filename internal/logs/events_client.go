package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"dlq/internal/events"
)

// ErrAPIUnavailable reports that no API bind address is configured.
var ErrAPIUnavailable = errors.New("event API unavailable")

// EventClient follows the daemon's /api/events feed.
type EventClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewEventClient targets the API at bind. It returns ErrAPIUnavailable when
// bind is empty.
func NewEventClient(bind, token string) (*EventClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path, base.RawQuery, base.Fragment = "", "", ""
	return &EventClient{
		base:  base,
		token: strings.TrimSpace(token),
		// no timeout; Follow blocks until ctx ends
		http: &http.Client{},
	}, nil
}

// Follow calls fn for each event until ctx is canceled, the server closes
// the stream, or fn returns an error.
func (c *EventClient) Follow(ctx context.Context, fn func(events.Event) error) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/events"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api events returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var evt events.Event
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the API cannot be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
