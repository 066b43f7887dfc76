package driver

import (
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when cachePayload format changes.
const cacheSchemaVersion uint16 = 1

// CacheKey is the sha256 digest of a binary's content.
type CacheKey [32]byte

// CachedArtifact is one rendered descriptor stored for replay.
type CachedArtifact struct {
	Filename string
	Content  []byte
}

// cachePayload is the on-disk record for one scanned binary.
type cachePayload struct {
	Schema    uint16
	Artifacts []CachedArtifact
}

// Cache replays extraction results for binaries whose content digest was
// seen in an earlier run, skipping the scan/decode/render work entirely.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// OpenCache initializes a cache at the standard location:
// $XDG_CACHE_HOME/app, falling back to ~/.cache/app.
func OpenCache(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenCacheAt initializes a cache rooted at an explicit directory.
func OpenCacheAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key CacheKey) string {
	// Results live in a "scans" subdirectory so the cache root stays easy to
	// inspect and clear.
	return filepath.Join(c.dir, "scans", hex.EncodeToString(key[:])+".mp")
}

// Get returns the artifacts recorded for key, if any. Stale schema versions
// and unreadable entries count as misses.
func (c *Cache) Get(key CacheKey) ([]CachedArtifact, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return nil, false
	}
	var payload cachePayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	if payload.Schema != cacheSchemaVersion {
		return nil, false
	}
	return payload.Artifacts, true
}

// Put records the artifacts extracted from a binary. An empty artifact list
// is stored too: re-scanning a descriptor-free binary is the common waste.
func (c *Cache) Put(key CacheKey, artifacts []CachedArtifact) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msgpack.Marshal(&cachePayload{
		Schema:    cacheSchemaVersion,
		Artifacts: artifacts,
	})
	if err != nil {
		return err
	}
	path := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Remove drops one entry; missing entries are not an error.
func (c *Cache) Remove(key CacheKey) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.pathFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
