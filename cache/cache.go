// Package cache keeps rendered GET responses on disk, keyed by resource.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

type Cache struct {
	root   string
	maxAge time.Duration
}

func New(root string, maxAge time.Duration) *Cache {
	return &Cache{root: root, maxAge: maxAge}
}

// BlogKey is the cache key of a blog's thread view.
func BlogKey(blogID int) string {
	return fmt.Sprintf("blog/%d", blogID)
}

// Path returns the cache file path for key. The directory part of key becomes
// a subdirectory of the cache root.
func (c *Cache) Path(key string) string {
	dir, name := filepath.Split(key)
	shortHash := generateHash(key)[:16]
	return filepath.Join(c.root, dir, fmt.Sprintf("%s_%s.json", name, shortHash))
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func (c *Cache) Write(key string, body []byte) error {
	path := c.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, body, 0644)
}

// Read returns the cached body if it exists and is not expired.
func (c *Cache) Read(key string) ([]byte, bool) {
	path := c.Path(key)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return body, true
}

func (c *Cache) Clear(key string) error {
	err := os.Remove(c.Path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *Cache) ClearAll() error {
	return os.RemoveAll(c.root)
}

// ClearOld removes cache files older than maxAge.
func (c *Cache) ClearOld() error {
	return filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		if time.Since(info.ModTime()) > c.maxAge {
			os.Remove(path)
		}
		return nil
	})
}
