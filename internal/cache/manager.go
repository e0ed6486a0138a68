package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ManagerStats aggregates the counters of every level
type ManagerStats struct {
	Memory      *Stats
	Disk        *Stats
	Hits        int64
	Misses      int64
	Promotions  int64
	CleanupRuns int64
	LastCleanup time.Time
}

// HitRate returns the combined hit rate across levels
func (s ManagerStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Manager coordinates the memory and disk levels. Disk hits are promoted
// to memory; writes go to memory at once and to disk in the background.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	config Config

	writes sync.WaitGroup
	stop   chan struct{}
	loop   sync.WaitGroup

	mu     sync.Mutex
	stats  ManagerStats
	closed bool
}

// NewManager creates a manager with the levels enabled by config and
// starts the cleanup routine when configured.
func NewManager(config Config) (*Manager, error) {
	m := &Manager{config: config, stop: make(chan struct{})}

	if config.MemoryCapacity > 0 {
		m.memory = NewMemoryCache(config.MemoryCapacity)
	}
	if config.DiskCapacity > 0 && config.Dir != "" {
		disk, err := NewDiskCache(config.Dir, config.DiskCapacity, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to open disk cache: %w", err)
		}
		m.disk = disk
	}

	if config.CleanupInterval > 0 {
		m.loop.Add(1)
		go m.cleanupLoop(config.CleanupInterval)
	}
	return m, nil
}

// Get looks key up in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	if m.memory != nil {
		if data, ok := m.memory.Get(key); ok {
			m.count(true, false)
			return data, LevelMemory, true
		}
	}
	if m.disk != nil {
		if data, ok := m.disk.Get(key); ok {
			promoted := m.memory != nil && m.memory.Put(key, data) == nil
			m.count(true, promoted)
			return data, LevelDisk, true
		}
	}
	m.count(false, false)
	return nil, 0, false
}

func (m *Manager) count(hit, promoted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	if promoted {
		m.stats.Promotions++
	}
}

// Put stores value in memory and schedules the disk write.
func (m *Manager) Put(key string, value []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.disk != nil {
		m.writes.Add(1)
	}
	m.mu.Unlock()

	if m.memory != nil {
		if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
			return fmt.Errorf("memory cache: %w", err)
		}
	}

	if m.disk != nil {
		go func() {
			defer m.writes.Done()
			if err := m.disk.Put(key, value); err != nil {
				log.Warn("Failed to write disk cache entry", "error", err)
			}
		}()
	}
	return nil
}

// Delete removes key from every level once pending writes landed.
func (m *Manager) Delete(key string) error {
	m.writes.Wait()
	var errs []error
	for _, s := range m.stores() {
		errs = append(errs, s.Delete(key))
	}
	return errors.Join(errs...)
}

// Clear empties every level.
func (m *Manager) Clear() error {
	m.writes.Wait()
	var errs []error
	for _, s := range m.stores() {
		errs = append(errs, s.Clear())
	}
	return errors.Join(errs...)
}

// Prune removes entries older than maxAge from every level and returns
// how many were removed.
func (m *Manager) Prune(maxAge time.Duration) int {
	n := 0
	for _, s := range m.stores() {
		n += s.Prune(maxAge)
	}
	return n
}

// Stats returns a snapshot of all counters
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	s := m.stats
	m.mu.Unlock()

	if m.memory != nil {
		ms := m.memory.Stats()
		s.Memory = &ms
	}
	if m.disk != nil {
		ds := m.disk.Stats()
		s.Disk = &ds
	}
	return s
}

// Close stops the cleanup routine, waits for pending disk writes and
// persists the disk index.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	m.loop.Wait()
	m.writes.Wait()

	if m.disk != nil {
		return m.disk.Close()
	}
	return nil
}

func (m *Manager) stores() []Store {
	var out []Store
	if m.memory != nil {
		out = append(out, m.memory)
	}
	if m.disk != nil {
		out = append(out, m.disk)
	}
	return out
}

// cleanupLoop runs cleanup every interval until Close
func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.loop.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

// cleanup expires old entries and persists the disk index
func (m *Manager) cleanup() {
	removed := 0
	if m.config.TTL > 0 {
		removed = m.Prune(m.config.TTL)
	}
	if m.disk != nil {
		if err := m.disk.Flush(); err != nil {
			log.Warn("Failed to persist cache index", "error", err)
		}
	}

	m.mu.Lock()
	m.stats.CleanupRuns++
	m.stats.LastCleanup = time.Now()
	m.mu.Unlock()

	if removed > 0 {
		log.Debug("Cache cleanup", "removed", removed)
	}
}
