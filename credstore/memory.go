package credstore

import (
	"context"
	"sync"
	"time"
)

// Memory is a thread-safe in-memory Store. Sessions are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]Record
	nowTime func() time.Time
}

var _ Store = (*Memory)(nil)

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.nowTime = nowFunc
	}
}

func NewMemory(options ...MemoryOption) *Memory {
	m := &Memory{
		data:    make(map[string]Record),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Memory) Set(_ context.Context, sessionID string, rec Record) error {
	m.mu.Lock()
	m.data[sessionID] = rec
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, sessionID string) (Record, bool, error) {
	m.mu.RLock()
	rec, ok := m.data[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Record{}, false, nil
	}
	if rec.Expired(m.nowTime()) {
		_ = m.Delete(ctx, sessionID)
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.data, sessionID)
	m.mu.Unlock()
	return nil
}
