package notify

import (
	"testing"
	"time"

	"github.com/sequentia/remindflow-backend/internal/model"
)

func TestSubscribeReceivesScopedChanges(t *testing.T) {
	n := New()
	got := make(chan Change, 4)

	unsub := n.Subscribe(101, func(c Change) { got <- c })
	defer unsub()

	n.Publish(Change{EventID: 101, MessageID: 1, Status: model.StatusSent})
	n.Publish(Change{EventID: 202, MessageID: 2, Status: model.StatusSent})

	select {
	case c := <-got:
		if c.EventID != 101 || c.MessageID != 1 {
			t.Errorf("unexpected change: %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never notified")
	}

	select {
	case c := <-got:
		t.Errorf("received change for a different event: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMultipleSubscribersFanOut(t *testing.T) {
	n := New()
	a := make(chan Change, 1)
	b := make(chan Change, 1)

	unsubA := n.Subscribe(101, func(c Change) { a <- c })
	unsubB := n.Subscribe(101, func(c Change) { b <- c })
	defer unsubA()
	defer unsubB()

	n.Publish(Change{EventID: 101, MessageID: 1, Status: model.StatusPending})

	for name, ch := range map[string]chan Change{"a": a, "b": b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s never notified", name)
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	n := New()
	got := make(chan Change, 4)

	unsub := n.Subscribe(101, func(c Change) { got <- c })
	unsub()
	unsub() // safe to call again
	unsub()

	n.Publish(Change{EventID: 101, MessageID: 1, Status: model.StatusSent})

	select {
	case c := <-got:
		t.Errorf("unsubscribed callback still invoked: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	n := New()
	done := make(chan struct{})
	go func() {
		n.Publish(Change{EventID: 999, MessageID: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}
