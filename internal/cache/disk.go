package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "index.gob"
	entryExt  = ".pcm.zst"
)

// DiskCache is an L2 cache that keeps zstd-compressed entries as files
// under a directory, with a gob index persisted alongside them.
type DiskCache struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	size     int64
	index    map[string]*diskEntry
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	stats    Stats
	dirty    bool
	closed   bool
	now      func() time.Time
}

// diskEntry is one row of the persisted index
type diskEntry struct {
	File       string
	Size       int64 // compressed bytes on disk
	RawSize    int64
	Stored     time.Time
	LastAccess time.Time
}

// NewDiskCache opens or creates a disk cache in dir. Index rows whose file
// has gone missing are dropped.
func NewDiskCache(dir string, capacity int64, level int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(clampLevel(level))))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		encoder:  enc,
		decoder:  dec,
		stats:    Stats{Level: LevelDisk, Capacity: capacity},
		now:      time.Now,
	}

	if err := dc.loadIndex(); err != nil {
		log.Warn("Discarding unreadable cache index", "dir", dir, "error", err)
		dc.index = make(map[string]*diskEntry)
	}
	for key, e := range dc.index {
		if _, err := os.Stat(filepath.Join(dir, e.File)); err != nil {
			delete(dc.index, key)
			dc.dirty = true
			continue
		}
		dc.size += e.Size
	}

	log.Debug("Opened disk cache", "dir", dir, "entries", len(dc.index), "bytes", dc.size)
	return dc, nil
}

func clampLevel(level int) int {
	switch {
	case level < int(zstd.SpeedFastest):
		return int(zstd.SpeedFastest)
	case level > int(zstd.SpeedBestCompression):
		return int(zstd.SpeedBestCompression)
	default:
		return level
	}
}

// Get reads and decompresses the entry for key. Unreadable entries are
// removed and reported as a miss.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	e, ok := dc.index[key]
	if !ok || dc.closed {
		dc.stats.Misses++
		return nil, false
	}

	compressed, err := os.ReadFile(filepath.Join(dc.dir, e.File))
	if err == nil {
		var raw []byte
		raw, err = dc.decoder.DecodeAll(compressed, nil)
		if err == nil {
			e.LastAccess = dc.now()
			dc.dirty = true
			dc.stats.Hits++
			return raw, true
		}
	}

	log.Warn("Dropping corrupt cache entry", "key", key, "error", err)
	dc.removeLocked(key, e)
	dc.stats.Misses++
	return nil, false
}

// Put compresses value and writes it atomically, evicting the least
// recently accessed entries to stay within capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	compressed := dc.encoder.EncodeAll(value, nil)

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return ErrClosed
	}
	n := int64(len(compressed))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	if old, ok := dc.index[key]; ok {
		dc.removeLocked(key, old)
	}
	if over := dc.size + n - dc.capacity; over > 0 {
		dc.evictLocked(over)
	}

	e := &diskEntry{
		File:    key + entryExt,
		Size:    n,
		RawSize: int64(len(value)),
		Stored:  dc.now(),
	}
	e.LastAccess = e.Stored
	if err := writeAtomic(filepath.Join(dc.dir, e.File), compressed); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	dc.index[key] = e
	dc.size += n
	dc.dirty = true
	return nil
}

// Delete removes key. Missing keys are not an error.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if e, ok := dc.index[key]; ok {
		dc.removeLocked(key, e)
	}
	return nil
}

// Clear removes every entry and persists the empty index.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key, e := range dc.index {
		dc.removeLocked(key, e)
	}
	return dc.saveIndexLocked()
}

// Prune removes entries stored longer than maxAge ago.
func (dc *DiskCache) Prune(maxAge time.Duration) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	cutoff := dc.now().Add(-maxAge)
	pruned := 0
	for key, e := range dc.index {
		if e.Stored.Before(cutoff) {
			dc.removeLocked(key, e)
			pruned++
		}
	}
	return pruned
}

// Stats returns a snapshot of the cache counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Size = dc.size
	s.Items = len(dc.index)
	return s
}

// Flush persists the index if it changed.
func (dc *DiskCache) Flush() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if !dc.dirty || dc.closed {
		return nil
	}
	return dc.saveIndexLocked()
}

// Close persists the index and releases the codecs.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return nil
	}
	err := dc.saveIndexLocked()
	dc.closed = true
	dc.decoder.Close()
	if cerr := dc.encoder.Close(); err == nil {
		err = cerr
	}
	return err
}

// evictLocked removes least recently accessed entries until at least need
// bytes were freed (must be called with lock held).
func (dc *DiskCache) evictLocked(need int64) {
	keys := make([]string, 0, len(dc.index))
	for k := range dc.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return dc.index[keys[i]].LastAccess.Before(dc.index[keys[j]].LastAccess)
	})

	for _, k := range keys {
		if need <= 0 {
			return
		}
		e := dc.index[k]
		need -= e.Size
		dc.removeLocked(k, e)
		dc.stats.Evictions++
	}
}

// removeLocked deletes an entry and its file (must be called with lock held)
func (dc *DiskCache) removeLocked(key string, e *diskEntry) {
	if err := os.Remove(filepath.Join(dc.dir, e.File)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug("Failed to remove cache file", "file", e.File, "error", err)
	}
	delete(dc.index, key)
	dc.size -= e.Size
	dc.dirty = true
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&dc.index)
}

// saveIndexLocked writes the index (must be called with lock held)
func (dc *DiskCache) saveIndexLocked() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	dc.dirty = false
	return nil
}

// writeAtomic writes data to a temp file and renames it into place
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
