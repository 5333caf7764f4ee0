package dedup

import "sync"

// Memory 为运行内去重索引（默认实现）。并发安全。
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemory 创建内存索引。
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

// Seen 实现查并置：首见登记并返回 false。
func (m *Memory) Seen(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return true, nil
	}
	m.seen[key] = struct{}{}
	return false, nil
}

// Len 返回已登记键数（诊断用）。
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *Memory) Close() error { return nil }
