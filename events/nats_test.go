package events

import (
	"os"
	"testing"
	"time"

	"github.com/annoq/annoq/pipeline"
)

// natsURL returns the NATS URL for testing, or skips the test when no
// server is reachable.
func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("ANNOQ_NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}

	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.ConnectTimeout = 2 * time.Second
	cfg.MaxReconnects = 0
	bus, err := NewNATSBus(cfg)
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}
	bus.Close()

	return url
}

func newNATSBus(t *testing.T) *NATSBus {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.URL = natsURL(t)
	bus, err := NewNATSBus(cfg)
	if err != nil {
		t.Fatalf("NewNATSBus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestNATSPublishSubscribe(t *testing.T) {
	bus := newNATSBus(t)

	sub, err := bus.Subscribe(SubjectClaimed)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	event := Event{
		Subject: SubjectClaimed,
		TaskID:  "task-1",
		BatchID: "batch-1",
		Stage:   "L1",
		Status:  pipeline.StatusClaimed,
		ActorID: "rater-1",
	}
	if err := Publish(bus, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		got, err := Decode(msg.Data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.TaskID != "task-1" || got.ActorID != "rater-1" {
			t.Errorf("event = %+v", got)
		}
		if got.At.IsZero() {
			t.Error("At not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNATSWildcard(t *testing.T) {
	bus := newNATSBus(t)

	sub, err := bus.Subscribe(SubjectAll)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	for _, subject := range []string{SubjectCreated, SubjectDone} {
		if err := Publish(bus, Event{Subject: subject, TaskID: "task-1"}); err != nil {
			t.Fatalf("Publish %s: %v", subject, err)
		}
	}

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.Messages():
			seen[msg.Subject] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	if !seen[SubjectCreated] || !seen[SubjectDone] {
		t.Errorf("wildcard missed subjects, saw %v", seen)
	}
}
