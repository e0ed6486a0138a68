package cache

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestManager(t *testing.T, memory int64) *Manager {
	t.Helper()
	config := Config{
		MemoryCapacity:   memory,
		DiskCapacity:     1 << 20,
		Dir:              t.TempDir(),
		CompressionLevel: 1,
	}
	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create cache manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestManager_BasicOperations(t *testing.T) {
	manager := newTestManager(t, 1024)

	key := GenerateKey("m", "v", "hello")
	value := []byte("test-value")

	if err := manager.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, level, ok := manager.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if level != LevelMemory {
		t.Errorf("Expected memory hit, got %v", level)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", got, value)
	}

	if err := manager.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, ok := manager.Get(key); ok {
		t.Error("Key still exists after delete")
	}
}

func TestManager_Promotion(t *testing.T) {
	manager := newTestManager(t, 100)

	key := "promoted"
	value := make([]byte, 50)
	if err := manager.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	manager.writes.Wait()

	// push the key out of memory
	for i := 0; i < 4; i++ {
		_ = manager.Put(fmt.Sprintf("filler-%d", i), make([]byte, 30))
	}
	manager.writes.Wait()
	if manager.memory.Contains(key) {
		t.Fatal("Expected key evicted from memory")
	}

	_, level, ok := manager.Get(key)
	if !ok || level != LevelDisk {
		t.Fatalf("Expected disk hit, got ok=%v level=%v", ok, level)
	}
	if !manager.memory.Contains(key) {
		t.Error("Expected disk hit promoted to memory")
	}

	_, level, _ = manager.Get(key)
	if level != LevelMemory {
		t.Errorf("Expected memory hit after promotion, got %v", level)
	}

	s := manager.Stats()
	if s.Promotions != 1 || s.Hits != 2 {
		t.Errorf("Unexpected stats: %+v", s)
	}
}

func TestManager_MemoryOnly(t *testing.T) {
	manager, err := NewManager(Config{MemoryCapacity: 1024})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Close()

	_ = manager.Put("k", []byte("v"))
	if _, _, ok := manager.Get("k"); !ok {
		t.Error("Expected memory hit")
	}
	if s := manager.Stats(); s.Disk != nil || s.Memory == nil {
		t.Errorf("Expected only memory stats, got %+v", s)
	}
}

func TestManager_Miss(t *testing.T) {
	manager := newTestManager(t, 1024)
	if _, _, ok := manager.Get("missing"); ok {
		t.Error("Expected miss")
	}
	if s := manager.Stats(); s.Misses != 1 || s.HitRate() != 0 {
		t.Errorf("Unexpected stats: %+v", s)
	}
}

func TestManager_Clear(t *testing.T) {
	manager := newTestManager(t, 1024)
	for i := 0; i < 5; i++ {
		_ = manager.Put(fmt.Sprintf("k%d", i), []byte("value"))
	}

	if err := manager.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	s := manager.Stats()
	if s.Memory.Items != 0 || s.Disk.Items != 0 {
		t.Errorf("Expected empty levels, got memory=%d disk=%d", s.Memory.Items, s.Disk.Items)
	}
}

func TestManager_Cleanup(t *testing.T) {
	manager := newTestManager(t, 1024)
	manager.config.TTL = time.Hour

	old := time.Now().Add(-2 * time.Hour)
	manager.memory.now = func() time.Time { return old }
	manager.disk.now = func() time.Time { return old }
	_ = manager.Put("stale", []byte("x"))
	manager.writes.Wait()

	manager.memory.now = time.Now
	manager.disk.now = time.Now
	manager.cleanup()

	if _, _, ok := manager.Get("stale"); ok {
		t.Error("Expected stale entry removed by cleanup")
	}
	if s := manager.Stats(); s.CleanupRuns != 1 || s.LastCleanup.IsZero() {
		t.Errorf("Cleanup not recorded: %+v", s)
	}
}

func TestManager_Closed(t *testing.T) {
	manager, err := NewManager(Config{
		MemoryCapacity:  1024,
		DiskCapacity:    1 << 20,
		Dir:             t.TempDir(),
		CleanupInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	_ = manager.Put("k", []byte("v"))
	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := manager.Put("k2", []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}
