package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestInMemoryDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	require.NoError(t, q.Publish(ctx, Event{Type: TypeRegistered, Batch: 1, Team: "Fox"}))
	require.NoError(t, q.Publish(ctx, Event{Type: TypeMoved, Batch: 1, Team: "Wolf"}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	require.Equal(t, "Fox", receive(t, ch).Team)
	require.Equal(t, "Wolf", receive(t, ch).Team)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Event{Type: TypeRegistered}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Publish(ctx, Event{Type: TypeRegistered}), context.DeadlineExceeded)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewRedisQueue(client, "")
	q.wait = 50 * time.Millisecond

	require.NoError(t, q.Publish(ctx, Event{Type: TypeRegistered, Batch: 2, ParticipantID: "p1", Team: "Lion"}))
	_, err := mr.Lpush(DefaultKey, "not json")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Event{Type: TypeTeamChange, Batch: 2}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	first := receive(t, ch)
	require.Equal(t, TypeRegistered, first.Type)
	require.Equal(t, "p1", first.ParticipantID)
	require.False(t, first.At.IsZero(), "publish stamps the event")

	second := receive(t, ch)
	require.Equal(t, TypeTeamChange, second.Type, "undecodable entries are skipped")
}

func TestDiscard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, Discard{}.Publish(ctx, Event{Type: TypeMoved}))
	ch, err := Discard{}.Consume(ctx)
	require.NoError(t, err)
	cancel()
	_, ok := <-ch
	require.False(t, ok)
}
