package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/robert-at-pretension-io/tbgen/internal/config"
	"github.com/robert-at-pretension-io/tbgen/internal/extractor"
)

const cacheIndexVersion = 1

type cacheEntry struct {
	ContentHash      string `json:"content_hash"`
	InterfacePath    string `json:"interface_path"`
	ExtractorVersion string `json:"extractor_version"`
}

type cacheIndex struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

// interfaceCache stores extracted interfaces keyed by source path, reusing
// them while the content hash and extractor version are unchanged.
type interfaceCache struct {
	dir              string
	extractorVersion string
	mu               sync.Mutex
	index            cacheIndex
}

func newInterfaceCache(dir, extractorVersion string) *interfaceCache {
	return &interfaceCache{
		dir:              dir,
		extractorVersion: extractorVersion,
		index: cacheIndex{
			Version: cacheIndexVersion,
			Entries: make(map[string]cacheEntry),
		},
	}
}

func (c *interfaceCache) indexPath() string {
	return filepath.Join(c.dir, "index.json")
}

func (c *interfaceCache) interfacePathForFile(filePath string) string {
	h := sha256.Sum256([]byte(filePath))
	return filepath.Join(c.dir, "interfaces", hex.EncodeToString(h[:])+".json")
}

func (c *interfaceCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache mkdir: %w", err)
	}
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache index: %w", err)
	}
	var idx cacheIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parse cache index: %w", err)
	}
	if idx.Version != cacheIndexVersion {
		// Reset on version mismatch
		c.index = cacheIndex{Version: cacheIndexVersion, Entries: make(map[string]cacheEntry)}
		return nil
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]cacheEntry)
	}
	c.index = idx
	return nil
}

func (c *interfaceCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeJSONAtomic(c.indexPath(), c.index)
}

// Get returns the cached interface and its raw JSON for filePath.
func (c *interfaceCache) Get(filePath, contentHash string) (*extractor.ModuleInterface, []byte, bool, error) {
	c.mu.Lock()
	entry, ok := c.index.Entries[filePath]
	c.mu.Unlock()
	if !ok || entry.ContentHash != contentHash || entry.ExtractorVersion != c.extractorVersion {
		return nil, nil, false, nil
	}

	data, err := os.ReadFile(entry.InterfacePath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("read cached interface: %w", err)
	}
	var iface extractor.ModuleInterface
	if err := json.Unmarshal(data, &iface); err != nil {
		return nil, nil, false, fmt.Errorf("parse cached interface: %w", err)
	}
	return &iface, data, true, nil
}

func (c *interfaceCache) Put(filePath, contentHash string, iface *extractor.ModuleInterface) error {
	path := c.interfacePathForFile(filePath)
	if err := writeJSONAtomic(path, iface); err != nil {
		return err
	}

	c.mu.Lock()
	c.index.Entries[filePath] = cacheEntry{
		ContentHash:      contentHash,
		InterfacePath:    path,
		ExtractorVersion: c.extractorVersion,
	}
	c.mu.Unlock()
	return nil
}

func resolveCacheDir(baseDir string, cfg *config.Config) string {
	cacheDir := cfg.Analysis.Cache.Dir
	if cacheDir == "" {
		cacheDir = config.DefaultCacheDir
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(baseDir, cacheDir)
	}
	return cacheDir
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache json: %w", err)
	}
	return writeFileAtomic(path, data, ".tmp-*.json")
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never see a partial file.
func writeFileAtomic(path string, data []byte, pattern string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
