package catalog

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/ashahba/transfer-learning/config"
	"github.com/ashahba/transfer-learning/dataset"
	tlutils "github.com/ashahba/transfer-learning/utils"
)

// Directory serves the datasets listed in a catalog config from gob split
// files stored under the config root, one file per split.
type Directory struct {
	cfg    *config.CatalogConfig
	logger golog.Logger
}

// NewDirectory returns a directory catalog over the given config.
func NewDirectory(cfg *config.CatalogConfig, logger golog.Logger) (*Directory, error) {
	if cfg == nil {
		return nil, errors.New("catalog config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Directory{cfg: cfg, logger: logger}, nil
}

// Names returns the sorted names of the datasets the catalog can load.
func (c *Directory) Names() []string {
	names := make([]string, 0, len(c.cfg.Datasets))
	for name := range c.cfg.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry returns the description of a single dataset.
func (c *Directory) Entry(name string) (dataset.CatalogEntry, error) {
	d, ok := c.cfg.Datasets[name]
	if !ok {
		return dataset.CatalogEntry{}, errors.Wrapf(ErrDatasetNotFound, "%q, available: %v", name, c.Names())
	}
	splits := make([]dataset.Split, 0, len(d.Splits))
	for _, s := range d.Splits {
		splits = append(splits, dataset.Split(s))
	}
	return dataset.CatalogEntry{
		Name:        name,
		Description: d.Description,
		ClassNames:  d.ClassNames,
		Splits:      splits,
	}, nil
}

// SplitFile returns the path of the gob file holding one split of a dataset.
func (c *Directory) SplitFile(name string, split dataset.Split) (string, error) {
	d, ok := c.cfg.Datasets[name]
	if !ok {
		return "", errors.Wrapf(ErrDatasetNotFound, "%q, available: %v", name, c.Names())
	}
	dir, err := tlutils.SafeJoinDir(c.cfg.Root, d.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, string(split)+".gob"), nil
}

// Load reads the samples of one split of a dataset from its gob file.
func (c *Directory) Load(ctx context.Context, name string, split dataset.Split) ([]dataset.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := c.Entry(name)
	if err != nil {
		return nil, err
	}
	served := false
	for _, s := range entry.Splits {
		if s == split {
			served = true
			break
		}
	}
	if !served {
		return nil, errors.Wrapf(dataset.ErrSubsetNotFound,
			"catalog serves splits %v of %q", entry.Splits, name)
	}
	path, err := c.SplitFile(name, split)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening split file for %q", name)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var samples []dataset.Sample
	if err := gob.NewDecoder(f).Decode(&samples); err != nil {
		return nil, errors.Wrapf(err, "cannot decode split file %s", path)
	}
	c.logger.Debugw("split loaded", "dataset", name, "split", split, "samples", len(samples))
	return samples, nil
}

// WriteSplit stores the samples of one split under the catalog root, creating
// the dataset directory as needed. It is how catalogs are populated.
func (c *Directory) WriteSplit(name string, split dataset.Split, samples []dataset.Sample) (err error) {
	path, err := c.SplitFile(name, split)
	if err != nil {
		return err
	}
	if err := tlutils.EnsureDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if err := gob.NewEncoder(f).Encode(samples); err != nil {
		return errors.Wrapf(err, "cannot encode split file %s", path)
	}
	return nil
}
