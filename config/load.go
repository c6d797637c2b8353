package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pagewatch/pagewatch/errors"
)

// LoadFile reads and validates a single watch document. JSON by default,
// YAML for .yaml/.yml files. Unknown fields are ignored.
func LoadFile(path string) (*Watch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read watch config %s", path)
	}

	var w Watch
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &w); err != nil {
			return nil, errors.Wrapf(err, "failed to parse YAML watch config %s", path)
		}
	default:
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, errors.Wrapf(err, "failed to parse JSON watch config %s", path)
		}
	}

	if err := Validate(&w); err != nil {
		return nil, errors.Wrapf(err, "%s", filepath.Base(path))
	}

	w.SourceFile = path
	hash, err := w.ComputeContentHash()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to hash watch config %s", path)
	}
	w.ContentHash = hash
	return &w, nil
}

// LoadDir scans a config directory for watch documents. Invalid documents
// are skipped and reported in the second return value keyed by filename, so
// one broken file never takes down the rest of the fleet.
func LoadDir(dir string) ([]*Watch, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read config directory %s", dir)
	}

	var watches []*Watch
	invalid := make(map[string]error)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}

		w, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			invalid[name] = err
			continue
		}
		watches = append(watches, w)
	}

	// Deterministic order: by source filename.
	sort.Slice(watches, func(i, j int) bool {
		return watches[i].SourceFile < watches[j].SourceFile
	})

	return watches, invalid, nil
}

// Validate enforces the load-time invariants of a watch document.
func Validate(w *Watch) error {
	if w.URL == "" {
		return errors.NewInvalidConfigError("watch %q missing url", w.Name)
	}
	if len(w.Extractors) == 0 {
		return errors.NewInvalidConfigError("watch %q declares no extractors", w.Name)
	}
	if w.IntervalMs > 0 && w.Schedule != "" {
		return errors.NewInvalidConfigError("watch %q declares both interval and schedule", w.Name)
	}
	switch w.EffectiveFetchMode() {
	case FetchModeBrowser, FetchModeHTTP:
	default:
		return errors.NewInvalidConfigError("watch %q has unknown fetchMode %q", w.Name, w.FetchMode)
	}

	for i := range w.Extractors {
		e := &w.Extractors[i]
		if e.Name == "" {
			return errors.NewInvalidConfigError("watch %q extractor %d missing name", w.Name, i)
		}
		if e.Type == "" {
			return errors.NewInvalidConfigError("watch %q extractor %q missing type", w.Name, e.Name)
		}
		if e.Selector == "" && e.RequiresSelector() {
			return errors.NewInvalidConfigError("watch %q extractor %q (type %s) missing selector", w.Name, e.Name, e.Type)
		}
		if e.Type == ExtractAttribute && e.Attribute == "" {
			return errors.NewInvalidConfigError("watch %q extractor %q missing attribute", w.Name, e.Name)
		}
	}

	return nil
}
