package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()

	chA, cancelA := bus.Subscribe()
	chB, cancelB := bus.Subscribe()
	defer cancelA()
	defer cancelB()

	ev := Event{Type: TypeWarning, SessionID: "s1", Warning: 2, At: time.Now()}
	bus.Publish(context.Background(), ev)

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case got := <-ch:
			assert.Equal(t, TypeWarning, got.Type)
			assert.Equal(t, 2, got.Warning)
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			bus.Publish(context.Background(), Event{Type: TypeStatus})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()

	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)

	// publishing after cancel must not panic
	bus.Publish(context.Background(), Event{Type: TypeStatus})
}

func TestMultiPublishesToEverySink(t *testing.T) {
	var a, b capture
	m := Multi{&a, &b}
	m.Publish(context.Background(), Event{Type: TypeLockout})

	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}

type capture struct{ got []Event }

func (c *capture) Publish(_ context.Context, ev Event) { c.got = append(c.got, ev) }
