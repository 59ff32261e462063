// Package catalog loads the job category catalog from YAML files.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/gigboard/internal/models"
)

// Loader manages loading and lookup of category groups
type Loader struct {
	mu         sync.RWMutex
	groups     map[string]*models.CategoryGroup
	categories map[string]models.Category
}

// NewLoader creates an empty catalog
func NewLoader() *Loader {
	return &Loader{
		groups:     make(map[string]*models.CategoryGroup),
		categories: make(map[string]models.Category),
	}
}

// LoadFromDir loads every *.yaml / *.yml group file in dir.
// Malformed files are skipped with a warning.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to open catalog dir: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load category group", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("catalog loaded", "groups", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single category group
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var group models.CategoryGroup
	if err := yaml.Unmarshal(data, &group); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if group.ID == "" {
		base := filepath.Base(path)
		group.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if group.Name == "" {
		return fmt.Errorf("group name is required")
	}

	for i := range group.Categories {
		c := &group.Categories[i]
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("category %d in group %s needs id and name", i, group.ID)
		}
		if !strings.Contains(c.ID, "/") {
			c.ID = group.ID + "/" + c.ID
		}
		c.GroupID = group.ID
	}

	l.Add(&group)
	slog.Info("category group loaded", "id", group.ID, "categories", len(group.Categories))
	return nil
}

// Add registers a group, replacing any group with the same id
func (l *Loader) Add(group *models.CategoryGroup) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.groups[group.ID]; ok {
		for _, c := range old.Categories {
			delete(l.categories, c.ID)
		}
	}
	l.groups[group.ID] = group
	for i := range group.Categories {
		group.Categories[i].GroupID = group.ID
		l.categories[group.Categories[i].ID] = group.Categories[i]
	}
}

// Get returns a category by id, or nil
func (l *Loader) Get(id string) *models.Category {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.categories[id]
	if !ok {
		return nil
	}
	return &c
}

// Has reports whether id names a known category
func (l *Loader) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.categories[id]
	return ok
}

// List returns all groups ordered by id
func (l *Loader) List() []models.CategoryGroup {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.CategoryGroup, 0, len(l.groups))
	for _, g := range l.groups {
		cp := *g
		cp.Categories = append([]models.Category(nil), g.Categories...)
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
