package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueuePreservesArrivalOrder(t *testing.T) {
	q := NewInboundQueue(10)
	defer q.Close()

	q.Push(Message{Kind: KindFrame, Data: []byte("f1")})
	q.Push(Message{Kind: KindCommand, Data: []byte("c1")})
	q.Push(Message{Kind: KindFrame, Data: []byte("f2")})

	ctx := context.Background()
	for _, want := range []string{"f1", "c1", "f2"} {
		msg, ok := q.Pop(ctx)
		require.True(t, ok)
		assert.Equal(t, want, string(msg.Data))
	}
}

func TestQueueDropsOldestFrameUnderBackpressure(t *testing.T) {
	q := NewInboundQueue(2)
	defer q.Close()

	q.Push(Message{Kind: KindFrame, Data: []byte("f1")})
	q.Push(Message{Kind: KindFrame, Data: []byte("f2")})
	q.Push(Message{Kind: KindFrame, Data: []byte("f3")})

	assert.Equal(t, int64(1), q.DroppedFrames())
	assert.Equal(t, 2, q.Len())

	msg, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, "f2", string(msg.Data))
}

func TestQueueNeverDropsCommands(t *testing.T) {
	q := NewInboundQueue(1)
	defer q.Close()

	q.Push(Message{Kind: KindCommand, Data: []byte("c1")})
	q.Push(Message{Kind: KindFrame, Data: []byte("f1")})
	q.Push(Message{Kind: KindCommand, Data: []byte("c2")})
	q.Push(Message{Kind: KindFrame, Data: []byte("f2")})
	q.Push(Message{Kind: KindFrame, Data: []byte("f3")})

	// Two frames were evicted, both commands and the newest frame stay,
	// and relative order of the survivors is unchanged.
	assert.Equal(t, int64(2), q.DroppedFrames())

	ctx := context.Background()
	var got []string
	for q.Len() > 0 {
		msg, ok := q.Pop(ctx)
		require.True(t, ok)
		got = append(got, string(msg.Data))
	}
	assert.Equal(t, []string{"c1", "c2", "f3"}, got)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewInboundQueue(4)
	defer q.Close()

	done := make(chan Message, 1)
	go func() {
		msg, ok := q.Pop(context.Background())
		if ok {
			done <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Message{Kind: KindCommand, Data: []byte("late")})

	select {
	case msg := <-done:
		assert.Equal(t, "late", string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestQueuePopHonorsContextCancel(t *testing.T) {
	q := NewInboundQueue(4)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on cancel")
	}
}

func TestQueueCloseRejectsPushAndWakesPop(t *testing.T) {
	q := NewInboundQueue(4)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on close")
	}

	assert.False(t, q.Push(Message{Kind: KindCommand, Data: []byte("x")}))
}
