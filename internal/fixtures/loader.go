package fixtures

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KevinKickass/FountainCore/internal/types"
	"gopkg.in/yaml.v3"
)

// tableExtensions are tried in order for a table name without extension.
var tableExtensions = []string{".yaml", ".yml", ".json"}

// TableLoader finds directory tables on the search paths, validates them
// and decodes them into their typed form. YAML and JSON are both accepted.
type TableLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewTableLoader(searchPaths []string) (*TableLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &TableLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

func (l *TableLoader) LoadPalette(name string) (*types.PaletteTable, error) {
	var table types.PaletteTable
	if err := l.load(TablePalette, name, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

func (l *TableLoader) LoadFixtures(name string) (*types.FixtureTable, error) {
	var table types.FixtureTable
	if err := l.load(TableFixtures, name, &table); err != nil {
		return nil, err
	}

	for i := range table.Fixtures {
		format, ok := types.ParseFixtureFormat(string(table.Fixtures[i].Format))
		if !ok {
			return nil, fmt.Errorf("%w: fixture %d has unknown format %q",
				types.ErrConfig, table.Fixtures[i].ID, table.Fixtures[i].Format)
		}
		table.Fixtures[i].Format = format
	}

	return &table, nil
}

func (l *TableLoader) LoadGroups(name string) (*types.GroupTable, error) {
	var table types.GroupTable
	if err := l.load(TableGroups, name, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

func (l *TableLoader) load(kind TableKind, name string, out interface{}) error {
	cacheKey := string(kind) + ":" + name

	data, ok := l.cachedJSON(cacheKey)
	if !ok {
		raw, foundPath, err := l.read(name)
		if err != nil {
			return err
		}

		data, err = toJSON(raw, foundPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", types.ErrConfig, foundPath, err)
		}

		if err := l.validator.Validate(kind, data); err != nil {
			return fmt.Errorf("%w: validation failed for %s: %v", types.ErrConfig, foundPath, err)
		}

		l.cache.Store(cacheKey, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal %s table: %v", types.ErrConfig, kind, err)
	}

	return nil
}

func (l *TableLoader) cachedJSON(key string) ([]byte, bool) {
	cached, ok := l.cache.Load(key)
	if !ok {
		return nil, false
	}
	return cached.([]byte), true
}

func (l *TableLoader) read(name string) ([]byte, string, error) {
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = candidates[:0]
		for _, ext := range tableExtensions {
			candidates = append(candidates, name+ext)
		}
	}

	for _, searchPath := range l.searchPaths {
		for _, candidate := range candidates {
			fullPath := filepath.Join(searchPath, candidate)
			data, err := os.ReadFile(fullPath)
			if err == nil {
				return data, fullPath, nil
			}
		}
	}

	return nil, "", fmt.Errorf("%w: table not found: %s (searched in: %v)", types.ErrConfig, name, l.searchPaths)
}

// toJSON normalises a YAML or JSON table to JSON so one schema serves both.
func toJSON(raw []byte, path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return raw, nil
	}

	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	return json.Marshal(doc)
}

func (l *TableLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
