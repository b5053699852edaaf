package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CharacterResolver performs batch name <-> id lookups against a remote
// directory. Entries it cannot resolve are simply absent from the result.
type CharacterResolver interface {
	CharacterIDs(ctx context.Context, names []string) (map[string]int64, error)
	CharacterNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Characters is a name <-> id cache persisted as YAML. Misses are
// resolved in one batch through the resolver and written back.
type Characters struct {
	mu       sync.RWMutex
	byName   map[string]int64
	byID     map[int64]string
	path     string
	resolver CharacterResolver
	logger   *slog.Logger
}

// LoadCharacters reads the cache at path. A missing file yields an empty
// cache; path may be empty to disable persistence.
func LoadCharacters(path string, resolver CharacterResolver, logger *slog.Logger) (*Characters, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Characters{
		byName:   make(map[string]int64),
		byID:     make(map[int64]string),
		path:     path,
		resolver: resolver,
		logger:   logger.With("component", "directory"),
	}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read character cache: %w", err)
	}
	var stored map[string]int64
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse character cache %s: %w", path, err)
	}
	for name, id := range stored {
		c.put(name, id)
	}
	return c, nil
}

func (c *Characters) put(name string, id int64) {
	key := strings.ToLower(strings.TrimSpace(name))
	c.byName[key] = id
	c.byID[id] = key
}

// Add stores a known pair without a remote call.
func (c *Characters) Add(name string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(name, id)
}

// IDs resolves names (case-insensitive) to ids. The result is keyed by the
// lower-cased name; unknown names are absent.
func (c *Characters) IDs(ctx context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	var missing []string
	c.mu.RLock()
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if id, ok := c.byName[key]; ok {
			out[key] = id
		} else {
			missing = append(missing, key)
		}
	}
	c.mu.RUnlock()
	if len(missing) == 0 || c.resolver == nil {
		return out, nil
	}

	found, err := c.resolver.CharacterIDs(ctx, missing)
	if err != nil {
		return out, fmt.Errorf("resolve %d character names: %w", len(missing), err)
	}
	c.mu.Lock()
	for name, id := range found {
		c.put(name, id)
		out[strings.ToLower(name)] = id
	}
	c.mu.Unlock()
	c.persist()
	return out, nil
}

// Names resolves ids to lower-cased names; unknown ids are absent.
func (c *Characters) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	var missing []int64
	c.mu.RLock()
	for _, id := range ids {
		if n, ok := c.byID[id]; ok {
			out[id] = n
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.RUnlock()
	if len(missing) == 0 || c.resolver == nil {
		return out, nil
	}

	found, err := c.resolver.CharacterNames(ctx, missing)
	if err != nil {
		return out, fmt.Errorf("resolve %d character ids: %w", len(missing), err)
	}
	c.mu.Lock()
	for id, name := range found {
		c.put(name, id)
		out[id] = strings.ToLower(name)
	}
	c.mu.Unlock()
	c.persist()
	return out, nil
}

func (c *Characters) persist() {
	if err := c.Save(); err != nil {
		c.logger.Warn("character cache not saved", "path", c.path, "err", err)
	}
}

// Save writes the cache to disk.
func (c *Characters) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	data, err := yaml.Marshal(c.byName)
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, data, 0o644)
}
