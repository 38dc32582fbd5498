package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish(Event{Type: ReminderCreated, Data: 1})

	ev := <-a
	assert.Equal(t, ReminderCreated, ev.Type)
	assert.False(t, ev.Time.IsZero())
	assert.Equal(t, 1, (<-c).Data)

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: ReminderFired})
	require.Len(t, c, 1)
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	assert.Equal(t, "a", (<-ch).Type)
	assert.Len(t, ch, 0)
}
