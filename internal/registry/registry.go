// Package registry is the named repository of adapters and connectors that
// binding descriptions refer to.
package registry

import (
	"fmt"
	"slices"

	"github.com/roach88/vdb/internal/connector"
	"github.com/roach88/vdb/internal/value"
)

// Registry maps names to adapters and connectors.
type Registry struct {
	adapters   map[string]value.Adapter
	connectors map[string]connector.Connector
}

// New returns a registry pre-populated with the built-in connectors.
func New() *Registry {
	r := &Registry{
		adapters:   make(map[string]value.Adapter),
		connectors: make(map[string]connector.Connector),
	}
	r.connectors["trim"] = connector.Trim{}
	return r
}

// RegisterAdapter adds a under name. The adapter must report a view or
// model kind.
func (r *Registry) RegisterAdapter(name string, a value.Adapter) error {
	if name == "" {
		return fmt.Errorf("adapter name must not be empty")
	}
	if err := value.CheckAdapterKind(a.Kind()); err != nil {
		return fmt.Errorf("register adapter %q: %w", name, err)
	}
	r.adapters[name] = a
	return nil
}

// RegisterConnector adds c under name, replacing any existing entry.
func (r *Registry) RegisterConnector(name string, c connector.Connector) error {
	if name == "" {
		return fmt.Errorf("connector name must not be empty")
	}
	r.connectors[name] = c
	return nil
}

// Adapter looks up an adapter by name.
func (r *Registry) Adapter(name string) (value.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Connector looks up a connector by name.
func (r *Registry) Connector(name string) (connector.Connector, bool) {
	c, ok := r.connectors[name]
	return c, ok
}

// AdapterNames returns the registered adapter names, sorted.
func (r *Registry) AdapterNames() []string {
	return sortedKeys(r.adapters)
}

// ConnectorNames returns the registered connector names, sorted.
func (r *Registry) ConnectorNames() []string {
	return sortedKeys(r.connectors)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
