package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list change events are pushed to.
const DefaultKey = "attendance:events"

// Message is a change event travelling from the API to its consumers.
type Message struct {
	Type string
	Body []byte
}

// Publisher is the write side of a queue.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publisher
	Consume(ctx context.Context) (<-chan Message, error)
}

// New builds the queue for a backend name: memory, redis or none.
func New(backend string, client *redis.Client, size int) (Queue, error) {
	switch backend {
	case "memory", "":
		return NewInMemory(size), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis queue requires a redis client")
		}
		return NewRedisQueue(client, DefaultKey), nil
	case "none":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}

// InMemory is a channel-backed queue for single-process deployments and tests.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for consumers; it closes when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key, timeout: 5 * time.Second}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, serialize(msg)).Err()
}

// Consume streams messages using BRPOP until ctx is done.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					time.Sleep(100 * time.Millisecond)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			select {
			case out <- deserialize(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Discard drops every message. Consume yields nothing until ctx is done.
type Discard struct{}

func (Discard) Publish(context.Context, Message) error { return nil }

func (Discard) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

// serialize stores messages as Type|Body.
func serialize(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}
