package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherInvokesSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, event Event) error {
		got = append(got, string(event.Type))
		return nil
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, event Event) error {
		got = append(got, "second")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	require.NoError(t, err)
	assert.Equal(t, []string{"ticket_created", "second"}, got)
}

func TestDispatcherIgnoresUnrelatedEvents(t *testing.T) {
	d := NewInMemoryDispatcher()

	called := false
	d.Subscribe(EventSLAEscalated, func(_ context.Context, _ Event) error {
		called = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.False(t, called)
}

func TestDispatcherContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher()

	var reached bool
	d.Subscribe(EventTeamCreated, func(_ context.Context, _ Event) error {
		return errors.New("boom")
	})
	d.Subscribe(EventTeamCreated, func(_ context.Context, _ Event) error {
		reached = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTeamCreated}))
	assert.True(t, reached)
}
