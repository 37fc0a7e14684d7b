package events_test

import (
	"testing"

	"dlq/internal/events"
)

func TestHubDeliversInOrder(t *testing.T) {
	hub := events.NewHub()
	ch, cancel := hub.Subscribe(4)
	defer cancel()

	hub.Publish(events.Event{Type: events.TypeStatusChanged, TransferID: "a"})
	hub.Publish(events.Event{Type: events.TypeActiveCount, Count: 1})

	first, second := <-ch, <-ch
	if first.TransferID != "a" || second.Count != 1 {
		t.Fatalf("unexpected events %+v %+v", first, second)
	}
	if first.Time.IsZero() {
		t.Fatal("expected publish time stamped")
	}
}

func TestHubDropsForFullSubscriber(t *testing.T) {
	hub := events.NewHub()
	_, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(events.Event{Type: events.TypeTotalSpeed})
	hub.Publish(events.Event{Type: events.TypeTotalSpeed})
	if hub.Dropped() != 1 {
		t.Fatalf("expected one dropped delivery, got %d", hub.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := events.NewHub()
	ch, cancel := hub.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	hub.Publish(events.Event{Type: events.TypeQueueDrained})
}
