package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	b := NewBroker()
	var hooked []Event
	b.OnEvent(func(ev Event) { hooked = append(hooked, ev) })

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	ev := Event{Op: OpInsert, ID: "rec-1"}
	b.Publish(ev)
	assert.Equal(t, ev, <-sub1.C)
	assert.Equal(t, ev, <-sub2.C)
	assert.Equal(t, []Event{ev}, hooked)

	sub1.Close()
	sub1.Close() // idempotent
	_, open := <-sub1.C
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())

	b.Close()
	_, open = <-sub2.C
	assert.False(t, open)
	b.Publish(ev) // ignored once closed
	assert.Len(t, hooked, 1)

	late := b.Subscribe()
	_, open = <-late.C
	assert.False(t, open)
}

func TestBroker_subscribeAfterClose(t *testing.T) {
	b := NewBroker()
	b.Close()

	sub := b.Subscribe()
	require.NotPanics(t, sub.Close)
	require.NotPanics(t, sub.Close)
	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())
}

func TestBroker_slowSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	for i := 0; i < subscriptionBuffer+5; i++ {
		b.Publish(Event{Op: OpUpdate})
	}
	assert.Len(t, sub.C, subscriptionBuffer)
	sub.Close()
}

func TestParseEvent(t *testing.T) {
	ev, err := parseEvent(`{"op":"DELETE","id":"3f0c"}`)
	require.NoError(t, err)
	assert.Equal(t, Event{Op: OpDelete, ID: "3f0c"}, ev)

	_, err = parseEvent(`{"id":"3f0c"}`)
	assert.Error(t, err)
	_, err = parseEvent(`not json`)
	assert.Error(t, err)
}
