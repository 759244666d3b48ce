package events

import (
	"errors"
	"testing"
	"time"

	"github.com/annoq/annoq/pipeline"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, err := bus.Subscribe(SubjectClaimed)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(SubjectClaimed, []byte("payload")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Subject != SubjectClaimed {
			t.Errorf("Subject = %s, want task.claimed", msg.Subject)
		}
		if string(msg.Data) != "payload" {
			t.Errorf("Data = %s, want payload", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestMemoryBusWildcard(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	all, err := bus.Subscribe(SubjectAll)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	narrow, err := bus.Subscribe(SubjectDone)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(SubjectClaimed, []byte("a")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := bus.Publish(SubjectDone, []byte("b")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	received := 0
	timeout := time.After(time.Second)
	for received < 2 {
		select {
		case <-all.Messages():
			received++
		case <-timeout:
			t.Fatalf("wildcard subscriber got %d messages, want 2", received)
		}
	}

	select {
	case msg := <-narrow.Messages():
		if msg.Subject != SubjectDone {
			t.Errorf("narrow subscriber got %s, want task.done", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("narrow subscriber got nothing")
	}
	select {
	case msg := <-narrow.Messages():
		t.Errorf("narrow subscriber got extra message %s", msg.Subject)
	default:
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, err := bus.Subscribe(SubjectClaimed)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	// Channel closed after unsubscribe
	if _, ok := <-sub.Messages(); ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic
	if err := bus.Publish(SubjectClaimed, []byte("x")); err != nil {
		t.Fatalf("Publish after unsubscribe failed: %v", err)
	}

	// Double unsubscribe is a no-op
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second Unsubscribe = %v, want nil", err)
	}
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	sub, _ := bus.Subscribe(SubjectAll)
	bus.Close()

	if err := bus.Publish(SubjectClaimed, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if _, err := bus.Subscribe(SubjectClaimed); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("subscription channel should close with the bus")
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"task.claimed", "task.claimed", true},
		{"task.claimed", "task.done", false},
		{"task.*", "task.claimed", true},
		{"task.*", "task.done", true},
		{"*", "anything", true},
		{"batch.*", "task.claimed", false},
	}
	for _, tt := range tests {
		if got := MatchSubject(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("MatchSubject(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}

func TestEventRoundTrip(t *testing.T) {
	orig := Event{
		Subject: SubjectAdvanced,
		TaskID:  "t1",
		BatchID: "b1",
		Stage:   pipeline.Stage("L2"),
		Status:  pipeline.StatusPending,
		ActorID: "rev-1",
		At:      time.Now().UTC().Truncate(time.Second),
	}

	data, err := orig.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded != orig {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, orig)
	}
}

func TestPublishHelperStampsTime(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, _ := bus.Subscribe(SubjectClaimed)
	if err := Publish(bus, Event{Subject: SubjectClaimed, TaskID: "t1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		e, err := Decode(msg.Data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if e.At.IsZero() {
			t.Error("Publish should stamp At when unset")
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}
