package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ridematch/internal/models"
	"ridematch/pkg/cache"
	"ridematch/pkg/logger"
)

var ErrBusClosed = errors.New("dispatch bus closed")

// DispatchBus fans ride events out to topic subscribers. Delivery is
// at-most-once: slow subscribers lose events rather than block publishers.
type DispatchBus interface {
	Publish(ctx context.Context, topic string, event *models.DispatchEvent) error
	// Subscribe delivers events whose topic matches one of patterns until
	// ctx is done. A trailing "*" matches any suffix.
	Subscribe(ctx context.Context, patterns ...string) (<-chan *models.DispatchEvent, error)
	Close() error
}

// TopicMatches reports whether topic is selected by pattern.
func TopicMatches(pattern, topic string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == topic
}

type redisDispatchBus struct {
	cache  *cache.RedisCache
	buffer int
	logger *logger.Logger

	mu     sync.Mutex
	closed bool
	cancel []context.CancelFunc
}

// NewRedisDispatchBus publishes over Redis pub/sub so every API node sees
// every event.
func NewRedisDispatchBus(c *cache.RedisCache, buffer int, log *logger.Logger) DispatchBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &redisDispatchBus{
		cache:  c,
		buffer: buffer,
		logger: log.WithComponent("dispatch_bus"),
	}
}

func (b *redisDispatchBus) Publish(ctx context.Context, topic string, event *models.DispatchEvent) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	out := *event
	out.Topic = topic
	if err := b.cache.Publish(ctx, topic, &out); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event.Type, topic, err)
	}
	return nil
}

func (b *redisDispatchBus) Subscribe(ctx context.Context, patterns ...string) (<-chan *models.DispatchEvent, error) {
	if len(patterns) == 0 {
		return nil, validationError("at least one topic pattern is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = append(b.cancel, cancel)
	b.mu.Unlock()

	pubsub := b.cache.PSubscribe(ctx, patterns...)
	// wait for the subscription confirmation so no event published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", patterns, err)
	}

	out := make(chan *models.DispatchEvent, b.buffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event models.DispatchEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.WithError(err).WithField("topic", msg.Channel).Warn("Dropping malformed dispatch event")
					continue
				}
				event.Topic = msg.Channel

				select {
				case out <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (b *redisDispatchBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, cancel := range b.cancel {
		cancel()
	}
	b.cancel = nil
	return nil
}

func (b *redisDispatchBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type localSubscriber struct {
	patterns []string
	ch       chan *models.DispatchEvent
}

type localDispatchBus struct {
	buffer int
	logger *logger.Logger

	mu          sync.RWMutex
	closed      bool
	done        chan struct{}
	nextID      int
	subscribers map[int]*localSubscriber
}

// NewLocalDispatchBus is an in-process bus for single-node deployments and
// tests.
func NewLocalDispatchBus(buffer int, log *logger.Logger) DispatchBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &localDispatchBus{
		buffer:      buffer,
		logger:      log.WithComponent("dispatch_bus"),
		done:        make(chan struct{}),
		subscribers: make(map[int]*localSubscriber),
	}
}

func (b *localDispatchBus) Publish(ctx context.Context, topic string, event *models.DispatchEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	for _, sub := range b.subscribers {
		if !sub.matches(topic) {
			continue
		}
		out := *event
		out.Topic = topic
		select {
		case sub.ch <- &out:
		default:
			b.logger.WithField("topic", topic).WithField("event", event.Type).Warn("Subscriber buffer full, dropping event")
		}
	}
	return nil
}

func (b *localDispatchBus) Subscribe(ctx context.Context, patterns ...string) (<-chan *models.DispatchEvent, error) {
	if len(patterns) == 0 {
		return nil, validationError("at least one topic pattern is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	id := b.nextID
	b.nextID++
	sub := &localSubscriber{
		patterns: append([]string(nil), patterns...),
		ch:       make(chan *models.DispatchEvent, b.buffer),
	}
	b.subscribers[id] = sub
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub.ch)
		}
	}()

	return sub.ch, nil
}

func (b *localDispatchBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	return nil
}

func (s *localSubscriber) matches(topic string) bool {
	for _, p := range s.patterns {
		if TopicMatches(p, topic) {
			return true
		}
	}
	return false
}
