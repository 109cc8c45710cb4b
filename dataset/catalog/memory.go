package catalog

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/ashahba/transfer-learning/dataset"
)

// InMemory is a catalog fed programmatically. It backs tests and examples and
// is handy when samples already live in memory.
type InMemory struct {
	entries map[string]dataset.CatalogEntry
	splits  map[string]map[dataset.Split][]dataset.Sample
}

// NewInMemory returns an empty in-memory catalog.
func NewInMemory() *InMemory {
	return &InMemory{
		entries: map[string]dataset.CatalogEntry{},
		splits:  map[string]map[dataset.Split][]dataset.Sample{},
	}
}

// Add registers a dataset with its splits, replacing any previous entry of
// the same name. When the entry does not list its splits they are derived
// from the given map.
func (c *InMemory) Add(entry dataset.CatalogEntry, splits map[dataset.Split][]dataset.Sample) {
	if len(entry.Splits) == 0 {
		for s := range splits {
			entry.Splits = append(entry.Splits, s)
		}
		sort.Slice(entry.Splits, func(i, j int) bool { return entry.Splits[i] < entry.Splits[j] })
	}
	c.entries[entry.Name] = entry
	c.splits[entry.Name] = splits
}

// Names returns the sorted names of the datasets the catalog can load.
func (c *InMemory) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry returns the description of a single dataset.
func (c *InMemory) Entry(name string) (dataset.CatalogEntry, error) {
	entry, ok := c.entries[name]
	if !ok {
		return dataset.CatalogEntry{}, errors.Wrapf(ErrDatasetNotFound, "%q, available: %v", name, c.Names())
	}
	return entry, nil
}

// Load returns the samples of one split of a dataset.
func (c *InMemory) Load(ctx context.Context, name string, split dataset.Split) ([]dataset.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	byName, ok := c.splits[name]
	if !ok {
		return nil, errors.Wrapf(ErrDatasetNotFound, "%q, available: %v", name, c.Names())
	}
	samples, ok := byName[split]
	if !ok {
		return nil, errors.Wrapf(dataset.ErrSubsetNotFound, "catalog has no %q split of %q", split, name)
	}
	return samples, nil
}
