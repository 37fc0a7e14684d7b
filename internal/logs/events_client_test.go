package logs_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dlq/internal/events"
	"dlq/internal/logs"
)

func TestEventClientFollow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: active_count\ndata: {\"type\":\"active_count\",\"count\":2}\n\n")
		fmt.Fprint(w, "event: transfer_completed\ndata: {\"type\":\"transfer_completed\",\"transfer_id\":\"t1\"}\n\n")
	}))
	defer srv.Close()

	client, err := logs.NewEventClient(strings.TrimPrefix(srv.URL, "http://"), "tok")
	if err != nil {
		t.Fatalf("NewEventClient failed: %v", err)
	}
	var got []events.Event
	err = client.Follow(context.Background(), func(evt events.Event) error {
		got = append(got, evt)
		return nil
	})
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	if len(got) != 2 || got[0].Count != 2 || got[1].TransferID != "t1" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestEventClientStopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"tree_changed\"}\n\ndata: {\"type\":\"tree_changed\"}\n\n")
	}))
	defer srv.Close()

	client, err := logs.NewEventClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewEventClient failed: %v", err)
	}
	stop := errors.New("stop")
	calls := 0
	err = client.Follow(context.Background(), func(events.Event) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected stop after one event, got %v after %d calls", err, calls)
	}
}

func TestEventClientRequiresBind(t *testing.T) {
	if _, err := logs.NewEventClient("  ", ""); !logs.IsAPIUnavailable(err) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
}

func TestEventClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := logs.NewEventClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewEventClient failed: %v", err)
	}
	if err := client.Follow(context.Background(), func(events.Event) error { return nil }); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}
