// Package schema loads setting definitions: the catalogue of names a
// daemon knows about, their default values and validators. It is the
// Go stand-in for the original's definition files, trimmed to the
// subset of INI syntax fluid-settings actually needs.
package schema

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// DefinitionPattern is the glob every definitions directory is
// searched with.
const DefinitionPattern = "*.ini"

// Definition describes one known setting.
type Definition struct {
	Name      string
	Default   *string
	Help      string
	Validator Validator
}

// Registry is an immutable-after-load catalogue of definitions,
// keyed by canonical name. An empty registry is legal and dormant: a
// Store bound to it knows no names, so every Set is rejected as
// unknown. A Store bound to no registry at all (nil) instead accepts
// every name without validation.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Known reports whether name is bound in the registry.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.definitions[name]
	return ok
}

// Default returns name's default text, if it has one.
func (r *Registry) Default(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	if !ok || def.Default == nil {
		return "", false
	}
	return *def.Default, true
}

// Validate reports whether text is an acceptable value for name. An
// unknown name is rejected; a known name with no validator accepts
// anything.
func (r *Registry) Validate(name, text string) error {
	r.mu.RLock()
	def, ok := r.definitions[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema: unknown setting %q", name)
	}
	if def.Validator == nil {
		return nil
	}
	return def.Validator.Validate(text)
}

// Names returns every bound name, sorted. Store.ListOptions uses this
// (via a small interface check) to include definitions that have no
// stored records yet.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the full definition for name, if bound.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}

func (r *Registry) add(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.Name]; exists {
		log.Warn().Str("name", def.Name).Msg("schema: duplicate definition ignored, keeping first one seen")
		return
	}
	r.definitions[def.Name] = def
}

var _ settings.SchemaBinding = (*Registry)(nil)

// LoadPath loads every "*.ini" definition file found in path, a
// colon-separated list of directories searched in order. Later
// directories do not override a name already defined by an earlier
// one; that collision is logged and skipped. A registry with zero
// files found anywhere is a legal, dormant result, not an error.
func LoadPath(path string) (*Registry, error) {
	reg := NewRegistry()
	if path == "" {
		return reg, nil
	}

	found := false
	for _, dir := range strings.Split(path, ":") {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, DefinitionPattern))
		if err != nil {
			return nil, fmt.Errorf("schema: glob %s: %w", dir, err)
		}
		if len(matches) == 0 {
			log.Warn().Str("dir", dir).Str("pattern", DefinitionPattern).Msg("no fluid-settings definition files found")
			continue
		}
		sort.Strings(matches)
		for _, file := range matches {
			if err := loadDefinitionFile(reg, file); err != nil {
				return nil, err
			}
			found = true
		}
	}
	if !found {
		log.Warn().Str("path", path).Msg("fluid-settings has no definitions loaded, running dormant")
	}
	return reg, nil
}
