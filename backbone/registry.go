package backbone

import (
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Constructor builds a named backbone.
type Constructor func(logger golog.Logger) (Backbone, error)

var registry = map[string]Constructor{}

// Register makes a backbone constructor available under the given name. It
// panics when the name is already taken.
func Register(name string, c Constructor) {
	if _, old := registry[name]; old {
		panic(errors.Errorf("trying to register two backbones with the same name %q", name))
	}
	if c == nil {
		panic(errors.Errorf("cannot register a nil constructor for %q", name))
	}
	registry[name] = c
}

// Lookup returns the constructor registered under name.
func Lookup(name string) (Constructor, bool) {
	c, ok := registry[name]
	return c, ok
}

// Registered returns a copy of the registry.
func Registered() map[string]Constructor {
	return maps.Clone(registry)
}

// RegisteredNames returns the sorted names of all registered backbones.
func RegisteredNames() []string {
	names := maps.Keys(registry)
	sort.Strings(names)
	return names
}
