package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by operations on a closed cache
	ErrClosed = errors.New("cache closed")
)

// Level represents the cache tier
type Level int

const (
	// LevelMemory is the in-process LRU (L1)
	LevelMemory Level = iota

	// LevelDisk is the compressed on-disk store (L2)
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters for one cache level
type Stats struct {
	Level     Level
	Capacity  int64 // bytes
	Size      int64 // bytes currently stored
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Store is implemented by every cache level
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Prune(maxAge time.Duration) int
	Stats() Stats
}

// Config holds configuration for a Manager
type Config struct {
	// MemoryCapacity is the L1 size in bytes. Zero disables L1.
	MemoryCapacity int64

	// DiskCapacity is the L2 size in bytes. Zero, or an empty Dir,
	// disables L2.
	DiskCapacity int64
	Dir          string

	// CompressionLevel is the zstd level, 1 (fastest) to 4 (best)
	CompressionLevel int

	// TTL removes entries older than this during cleanup. Zero keeps
	// entries until evicted.
	TTL time.Duration

	// CleanupInterval is how often the background cleanup runs. Zero
	// disables it.
	CleanupInterval time.Duration
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 << 20,
		DiskCapacity:     512 << 20,
		CompressionLevel: 2,
		TTL:              30 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// GenerateKey derives a cache key from the parts that determine a
// synthesis result, such as model, voice and text.
func GenerateKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
