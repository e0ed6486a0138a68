package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pcmLike returns compressible data resembling quiet speech
func pcmLike(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 7)
	}
	return out
}

func TestDiskCache_PutGet(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 2)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	key := GenerateKey("m", "v", "text")
	value := pcmLike(4096)
	if err := dc.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := dc.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if !bytes.Equal(got, value) {
		t.Error("Round trip changed the value")
	}

	s := dc.Stats()
	if s.Items != 1 {
		t.Errorf("Expected 1 item, got %d", s.Items)
	}
	if s.Size >= int64(len(value)) {
		t.Errorf("Expected compressed size below %d, got %d", len(value), s.Size)
	}
	if _, err := os.Stat(filepath.Join(dir, key+entryExt)); err != nil {
		t.Errorf("Expected entry file on disk: %v", err)
	}
}

func TestDiskCache_Persistence(t *testing.T) {
	dir := t.TempDir()
	key := GenerateKey("persist")

	dc, err := NewDiskCache(dir, 1<<20, 1)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	if err := dc.Put(key, pcmLike(1000)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewDiskCache(dir, 1<<20, 1)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get(key)
	if !ok {
		t.Fatal("Entry lost across reopen")
	}
	if !bytes.Equal(got, pcmLike(1000)) {
		t.Error("Entry changed across reopen")
	}
}

func TestDiskCache_MissingFileDropped(t *testing.T) {
	dir := t.TempDir()
	key := GenerateKey("gone")

	dc, _ := NewDiskCache(dir, 1<<20, 1)
	_ = dc.Put(key, pcmLike(100))
	_ = dc.Close()

	if err := os.Remove(filepath.Join(dir, key+entryExt)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	reopened, err := NewDiskCache(dir, 1<<20, 1)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer reopened.Close()
	if reopened.Stats().Items != 0 {
		t.Error("Expected index row for missing file to be dropped")
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	dc, _ := NewDiskCache(dir, 1<<20, 1)
	defer dc.Close()

	key := GenerateKey("corrupt")
	_ = dc.Put(key, pcmLike(100))
	if err := os.WriteFile(filepath.Join(dir, key+entryExt), []byte("not zstd"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, ok := dc.Get(key); ok {
		t.Fatal("Expected corrupt entry to miss")
	}
	if dc.Stats().Items != 0 {
		t.Error("Expected corrupt entry removed")
	}
}

func TestDiskCache_Eviction(t *testing.T) {
	dc, _ := NewDiskCache(t.TempDir(), 1<<20, 1)
	defer dc.Close()

	clock := time.Unix(1_000_000, 0)
	dc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	value := pcmLike(2000)
	_ = dc.Put("a", value)
	entrySize := dc.Stats().Size
	dc.capacity = entrySize * 2

	_ = dc.Put("b", value)
	dc.Get("a") // b is now least recently accessed
	_ = dc.Put("c", value)

	if _, ok := dc.index["b"]; ok {
		t.Error("Expected b to be evicted")
	}
	if _, ok := dc.index["a"]; !ok {
		t.Error("Expected recently read a to survive")
	}
	if s := dc.Stats(); s.Evictions != 1 || s.Size > dc.capacity {
		t.Errorf("Unexpected stats after eviction: %+v", s)
	}
}

func TestDiskCache_PruneAndClear(t *testing.T) {
	dir := t.TempDir()
	dc, _ := NewDiskCache(dir, 1<<20, 1)
	defer dc.Close()

	clock := time.Unix(1_000_000, 0)
	dc.now = func() time.Time { return clock }

	_ = dc.Put("old", pcmLike(10))
	clock = clock.Add(48 * time.Hour)
	_ = dc.Put("new", pcmLike(10))

	if n := dc.Prune(24 * time.Hour); n != 1 {
		t.Errorf("Expected 1 pruned, got %d", n)
	}
	if _, ok := dc.Get("new"); !ok {
		t.Error("Prune removed a fresh entry")
	}

	if err := dc.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s := dc.Stats(); s.Items != 0 || s.Size != 0 {
		t.Errorf("Expected empty cache, got %+v", s)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+entryExt))
	if len(matches) != 0 {
		t.Errorf("Expected entry files removed, found %v", matches)
	}
}

func TestDiskCache_Closed(t *testing.T) {
	dc, _ := NewDiskCache(t.TempDir(), 1<<20, 1)
	_ = dc.Close()

	if err := dc.Put("k", []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, ok := dc.Get("k"); ok {
		t.Error("Closed cache returned a hit")
	}
	if err := dc.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}
