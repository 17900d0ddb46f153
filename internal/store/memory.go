package store

import (
	"context"
	"sort"
	"sync"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/enrich"
)

// Memory 是进程内实现：dry-run 时替代真实数据库，也用于测试。
type Memory struct {
	mu     sync.RWMutex
	rows   map[domain.IdentityKey]domain.MovieRecord
	closed bool

	// FailOn 非空时在 Upsert 前调用；返回非 nil 即视为该条写入失败（测试注入用）。
	FailOn func(key domain.IdentityKey) error
	// PingErr 非空时 Ping 返回该错误。
	PingErr error
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[domain.IdentityKey]domain.MovieRecord)}
}

func (m *Memory) Upsert(_ context.Context, key domain.IdentityKey, rec domain.MovieRecord) error {
	if m.FailOn != nil {
		if err := m.FailOn(key); err != nil {
			return &PersistenceError{Op: "upsert", Key: key, Err: err}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &PersistenceError{Op: "upsert", Key: key, Err: ErrClosed}
	}
	if old, ok := m.rows[key]; ok {
		m.rows[key] = enrich.Merge(old, rec)
		return nil
	}
	m.rows[key] = rec.Clone()
	return nil
}

func (m *Memory) Count(_ context.Context, f CountFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rows {
		if f.WithPoster && r.PosterURL == "" {
			continue
		}
		if f.WithDescription && r.Description == "" {
			continue
		}
		if f.WithCast && len(r.Cast) == 0 {
			continue
		}
		n++
	}
	return n, nil
}

func (m *Memory) Ping(context.Context) error {
	if m.PingErr != nil {
		return &PersistenceError{Op: "ping", Err: m.PingErr}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Get 返回 key 对应记录的副本。
func (m *Memory) Get(key domain.IdentityKey) (domain.MovieRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[key]
	return r.Clone(), ok
}

// Keys 返回所有 key（字典序）。
func (m *Memory) Keys() []domain.IdentityKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.IdentityKey, 0, len(m.rows))
	for k := range m.rows {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
