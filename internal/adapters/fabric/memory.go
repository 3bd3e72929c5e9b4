package fabric

import (
	"context"
	"strconv"
	"sync"

	"github.com/inkboard/inkboard/internal/core"
)

// Memory is an in-process Fabric. It backs tests and single-node runs
// where no redis is configured. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	kv   map[string]string
	sets map[string]map[string]struct{}
	subs map[string][]*memorySubscription
}

func NewMemory() *Memory {
	return &Memory{
		kv:   make(map[string]string),
		sets: make(map[string]map[string]struct{}),
		subs: make(map[string][]*memorySubscription),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return "", core.ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.kv[key], 10, 64)
	n++
	m.kv[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *Memory) SetAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	s[member] = struct{}{}
	return nil
}

func (m *Memory) SetRemove(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[key]; ok {
		delete(s, member)
		if len(s) == 0 {
			delete(m.sets, key)
		}
	}
	return nil
}

func (m *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sets[key]
	out := make([]string, 0, len(s))
	for member := range s {
		out = append(out, member)
	}
	return out, nil
}

func (m *Memory) SetContains(_ context.Context, key, member string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sets[key][member]
	return ok, nil
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	subs := make([]*memorySubscription, len(m.subs[channel]))
	copy(subs, m.subs[channel])
	m.mu.RUnlock()

	msg := core.Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string) (core.Subscription, error) {
	sub := &memorySubscription{
		parent:  m,
		channel: channel,
		out:     make(chan core.Message, 64),
	}
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], sub)
	m.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	parent  *Memory
	channel string
	out     chan core.Message

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- msg:
	default:
	}
}

func (s *memorySubscription) Messages() <-chan core.Message { return s.out }

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	subs := s.parent.subs[s.channel]
	for i, sub := range subs {
		if sub == s {
			s.parent.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
