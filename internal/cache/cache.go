// Package cache stores downloaded resource archives locally so repeated
// bulk downloads of the same selection skip the network.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"
)

// Entry is one cached archive.
type Entry struct {
	Key        string    `json:"key"`
	LocalPath  string    `json:"local_path"`
	Size       int64     `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

// Cache manages locally cached archives with size-bounded LRU eviction.
type Cache struct {
	dir     string
	maxSize int64

	mu      sync.RWMutex
	entries map[string]*Entry
	size    int64
}

// New creates a cache rooted at dir, indexing archives already on disk.
func New(dir string, maxSize int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		dir:     dir,
		maxSize: maxSize,
		entries: make(map[string]*Entry),
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".zip") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(name, ".zip")
		c.entries[key] = &Entry{
			Key:        key,
			LocalPath:  filepath.Join(dir, name),
			Size:       info.Size(),
			LastAccess: info.ModTime(),
		}
		c.size += info.Size()
	}
	return c, nil
}

// Key derives a stable cache key for a bulk-download resource set.
func Key(resources protocol.ResourceMap) string {
	kinds := make([]models.Kind, 0, len(resources))
	for kind := range resources {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	h := sha256.New()
	for _, kind := range kinds {
		ids := append([]string(nil), resources[kind]...)
		sort.Strings(ids)
		fmt.Fprintf(h, "%s:%s;", kind, strings.Join(ids, ","))
	}
	return hex.EncodeToString(h.Sum(nil))[:24]
}

// Get returns the local path if the archive is cached, bumping its
// access time.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	entry.LastAccess = time.Now()
	return entry.LocalPath, true
}

// Put stores an archive, written atomically (temp file then rename).
func (c *Cache) Put(key string, r io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	localPath := filepath.Join(c.dir, key+".zip")
	tempPath := localPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(f, r)
	f.Close()
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	// Overwriting a key replaces its archive on disk; retire the old
	// entry first so its size is not double-counted and eviction cannot
	// remove the freshly written file.
	if old, ok := c.entries[key]; ok {
		c.size -= old.Size
		delete(c.entries, key)
	}

	for c.size+written > c.maxSize {
		if !c.evictOldest() {
			break
		}
	}

	c.entries[key] = &Entry{
		Key:        key,
		LocalPath:  localPath,
		Size:       written,
		LastAccess: time.Now(),
	}
	c.size += written
	return localPath, nil
}

// evictOldest removes the least recently used entry. Lock must be held.
func (c *Cache) evictOldest() bool {
	var oldest *Entry
	for _, entry := range c.entries {
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldest = entry
		}
	}
	if oldest == nil {
		return false
	}
	os.Remove(oldest.LocalPath)
	c.size -= oldest.Size
	delete(c.entries, oldest.Key)
	return true
}

// Clear removes every cached archive and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, entry := range c.entries {
		os.Remove(entry.LocalPath)
		c.size -= entry.Size
		delete(c.entries, key)
		count++
	}
	return count
}

// Stats returns cache statistics.
func (c *Cache) Stats() (size, maxSize int64, count int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size, c.maxSize, len(c.entries)
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}
