package events

import (
	"context"
	"testing"
	"time"

	"procgrid/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewSubscriber(client)
	ch, err := sub.Subscribe(ctx)
	require.NoError(t, err)

	ev := &model.LifecycleEvent{
		EventID:         "ev-1",
		ProcessID:       "proc-1",
		OwnerID:         "user-1",
		GatewayServerID: "srv-1",
		ProcessType:     model.ProcessTypeFileDownload,
		State:           model.ProcessStateCompleted,
		FreedReservation: model.Reservation{
			CPU: 50, RAM: 128, HDD: 10, Net: 5,
		},
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	pub := NewPublisher(client)
	require.NoError(t, pub.Publish(ctx, ev))

	select {
	case got := <-ch:
		assert.Equal(t, ev.ProcessID, got.ProcessID)
		assert.Equal(t, ev.State, got.State)
		assert.Equal(t, ev.FreedReservation, got.FreedReservation)
		assert.Equal(t, model.EventProcessCompleted, got.EventType())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lifecycle event")
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := NewSubscriber(client)
	ch, err := sub.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must close after context cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestPublishNilClientIsNoop(t *testing.T) {
	pub := NewPublisher(nil)
	err := pub.Publish(context.Background(), &model.LifecycleEvent{ProcessID: "p"})
	assert.NoError(t, err)
}
