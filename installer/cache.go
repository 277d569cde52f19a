package installer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// CacheEntry records what was installed into one script directory.
type CacheEntry struct {
	ScriptID  string    `json:"scriptId"`
	Directory string    `json:"directory"`
	Packages  []string  `json:"packages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type cacheFile struct {
	Scripts map[string]*CacheEntry `json:"scripts"`
}

// PackageCache is the on-disk record of per-directory installed packages,
// used to rehydrate working directories after runner state is wiped.
// Read-modify-write per operation; installs on one runner are serialized
// by that runner's own execution concurrency.
type PackageCache struct {
	path string
	mu   sync.Mutex
}

// NewPackageCache creates a cache backed by the given file path. The file
// is created lazily on first write.
func NewPackageCache(path string) *PackageCache {
	return &PackageCache{path: path}
}

// Path returns the cache file location.
func (c *PackageCache) Path() string { return c.path }

// Record merges installed package names into the directory's entry.
// Additive: previously recorded packages are never dropped, so partial
// reinstalls cannot shrink what rehydration restores.
func (c *PackageCache) Record(scriptID, directory string, packages []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.load()
	if err != nil {
		return err
	}

	key := dirKey(directory)
	entry, ok := f.Scripts[key]
	if !ok {
		entry = &CacheEntry{ScriptID: scriptID, Directory: directory}
		f.Scripts[key] = entry
	}
	entry.ScriptID = scriptID
	entry.Directory = directory
	entry.Packages = mergePackages(entry.Packages, packages)
	entry.UpdatedAt = time.Now().UTC()

	return c.save(f)
}

// Entries returns a snapshot of all cache entries.
func (c *PackageCache) Entries() ([]*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.load()
	if err != nil {
		return nil, err
	}
	entries := make([]*CacheEntry, 0, len(f.Scripts))
	for _, e := range f.Scripts {
		copied := *e
		copied.Packages = append([]string(nil), e.Packages...)
		entries = append(entries, &copied)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Directory < entries[b].Directory })
	return entries, nil
}

// Lookup returns the entry for a directory, if recorded.
func (c *PackageCache) Lookup(directory string) (*CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.load()
	if err != nil {
		return nil, false, err
	}
	e, ok := f.Scripts[dirKey(directory)]
	if !ok {
		return nil, false, nil
	}
	copied := *e
	copied.Packages = append([]string(nil), e.Packages...)
	return &copied, true, nil
}

// load reads the cache file; a missing file is an empty cache.
func (c *PackageCache) load() (*cacheFile, error) {
	f := &cacheFile{Scripts: make(map[string]*CacheEntry)}
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read package cache")
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "failed to parse package cache")
	}
	if f.Scripts == nil {
		f.Scripts = make(map[string]*CacheEntry)
	}
	return f, nil
}

func (c *PackageCache) save(f *cacheFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal package cache")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create cache directory")
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write package cache")
	}
	return nil
}

// dirKey normalizes a directory path into a stable map key.
func dirKey(directory string) string {
	return filepath.ToSlash(filepath.Clean(directory))
}

func mergePackages(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, p := range existing {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	for _, p := range incoming {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	sort.Strings(merged)
	return merged
}
