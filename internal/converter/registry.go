package converter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
)

// Registry holds the available converters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	items    map[string]Converter
	disabled map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		items:    make(map[string]Converter),
		disabled: make(map[string]bool),
	}
}

// Register adds or replaces a converter
func (r *Registry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.Name()] = c
}

// Get retrieves a converter by name
func (r *Registry) Get(name string) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[name]
	return c, ok
}

// List returns all registered converters ordered by name
func (r *Registry) List() []Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Converter, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ListInfo describes every registered converter and the kinds it serves
func (r *Registry) ListInfo() []ConverterInfo {
	converters := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ConverterInfo, 0, len(converters))
	for _, c := range converters {
		info := ConverterInfo{Name: c.Name(), Capability: c.Capability(), Enabled: !r.disabled[c.Name()]}
		for _, k := range domain.Kinds() {
			if k.Capability == c.Capability() && c.CanConvert(k.Source, k.Target) {
				info.Kinds = append(info.Kinds, k.Kind)
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Find returns the first enabled converter, in name order, that serves
// capability and the (source, target) pair.
func (r *Registry) Find(capability domain.Capability, source, target format.Format) (Converter, error) {
	for _, c := range r.List() {
		if !r.IsEnabled(c.Name()) || c.Capability() != capability {
			continue
		}
		if c.CanConvert(source, target) {
			return c, nil
		}
	}
	return nil, domain.Errorf(domain.NotFound, "dispatch", "no %s converter for %s to %s", capability, source, target)
}

// Enable enables a converter by name
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return fmt.Errorf("converter not found: %s", name)
	}
	delete(r.disabled, name)
	return nil
}

// Disable disables a converter by name
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return fmt.Errorf("converter not found: %s", name)
	}
	r.disabled[name] = true
	return nil
}

// IsEnabled checks if a converter is enabled
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[name]
}
