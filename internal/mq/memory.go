package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryClient is an in-process broadcast backend used when no broker is
// configured. Messages reach only subscribers of the same process.
type MemoryClient struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]chan Message
	nextID uint64
	closed bool
}

// NewMemoryClient constructs an empty in-process backend.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{subs: make(map[string]map[uint64]chan Message)}
}

// Publish delivers the message to every current subscriber of channel.
// A subscriber whose buffer is full misses the message.
func (m *MemoryClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New("memory backend closed")
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	for _, ch := range m.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return msg.ID, nil
}

// Subscribe consumes messages from channel until ctx is done or the
// backend is closed.
func (m *MemoryClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}

	ch := make(chan Message, 64)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("memory backend closed")
	}
	id := m.nextID
	m.nextID++
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[uint64]chan Message)
	}
	m.subs[channel][id] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs[channel], id)
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("memory backend closed")
			}
			_ = handler(ctx, msg)
		}
	}
}

// Close stops every subscriber.
func (m *MemoryClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for channel, subs := range m.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(m.subs, channel)
	}
	return nil
}
