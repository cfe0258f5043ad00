package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(2)
	if err := q.Publish(ctx, Message{Type: "student.added", Body: []byte(`{"id":1}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	msg := <-messages
	if msg.Type != "student.added" || string(msg.Body) != `{"id":1}` {
		t.Fatalf("unexpected message %+v", msg)
	}

	cancel()
	for range messages {
	}
}

func TestInMemoryPublishHonoursContextWhenFull(t *testing.T) {
	q := NewInMemory(1)
	if err := q.Publish(context.Background(), Message{Type: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{Type: "b"}); err == nil {
		t.Fatalf("expected publish on a full queue to fail once ctx is done")
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewRedisQueue(client, "")
	q.timeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	body := []byte(`{"note":"a|b"}`)
	if err := q.Publish(ctx, Message{Type: "attendance.recorded", Body: body}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n, _ := client.LLen(ctx, DefaultKey).Result(); n != 1 {
		t.Fatalf("expected one queued message, got %d", n)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-messages:
		if msg.Type != "attendance.recorded" || string(msg.Body) != string(body) {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for message")
	}
}

func TestDeserialize(t *testing.T) {
	if msg := deserialize("student.added|{}"); msg.Type != "student.added" || string(msg.Body) != "{}" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg := deserialize("no-separator"); msg.Type != "" || string(msg.Body) != "no-separator" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	if q, err := New("memory", nil, 0); err != nil {
		t.Fatalf("memory: %v", err)
	} else if _, ok := q.(*InMemory); !ok {
		t.Fatalf("expected *InMemory, got %T", q)
	}
	if _, err := New("redis", nil, 0); err == nil {
		t.Fatalf("redis backend without client must fail")
	}
	if q, err := New("none", nil, 0); err != nil {
		t.Fatalf("none: %v", err)
	} else if err := q.Publish(context.Background(), Message{Type: "x"}); err != nil {
		t.Fatalf("discard publish: %v", err)
	}
	if _, err := New("kafka", nil, 0); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
