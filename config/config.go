// Package config reads and validates the catalog configuration of the
// toolkit: which datasets exist, where their split files live and which
// splits they serve.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/ashahba/transfer-learning/dataset"
)

// TltDotDir is the home directory of the toolkit ($HOME/.tlt).
var TltDotDir string

func init() {
	//nolint:errcheck
	home, _ := os.UserHomeDir()
	TltDotDir = filepath.Join(home, ".tlt")
}

// DefaultCatalogPath returns the catalog config file used when none is given
// explicitly: $TLT_CATALOG when set, else $HOME/.tlt/catalog.json.
func DefaultCatalogPath() string {
	if path := os.Getenv("TLT_CATALOG"); path != "" {
		return path
	}
	return filepath.Join(TltDotDir, "catalog.json")
}

// DatasetConfig describes one dataset a directory catalog can serve. Path is
// relative to the catalog root and holds one gob file per split.
type DatasetConfig struct {
	Path        string   `json:"path"`
	Description string   `json:"description,omitempty"`
	ClassNames  []string `json:"class_names,omitempty"`
	Splits      []string `json:"splits"`
}

// CatalogConfig lists the datasets available to the toolkit, keyed by name.
type CatalogConfig struct {
	Root     string                   `json:"root"`
	Datasets map[string]DatasetConfig `json:"datasets"`
}

// Read reads a catalog config from the given file, substituting environment
// variables first.
func Read(filePath string, logger golog.Logger) (*CatalogConfig, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(bytes.NewReader(buf), logger)
}

// FromReader reads and validates a catalog config from the given reader.
func FromReader(r io.Reader, logger golog.Logger) (*CatalogConfig, error) {
	cfg := &CatalogConfig{}
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse the catalog config as json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("catalog config read", "root", cfg.Root, "datasets", len(cfg.Datasets))
	return cfg, nil
}

// Validate ensures the config can serve a directory catalog.
func (c *CatalogConfig) Validate() error {
	if c.Root == "" {
		return errors.New(`catalog config must set "root"`)
	}
	if len(c.Datasets) == 0 {
		return errors.New("catalog config lists no datasets")
	}
	for name, d := range c.Datasets {
		if err := d.validate(); err != nil {
			return errors.Wrapf(err, "dataset %q", name)
		}
	}
	return nil
}

func (d *DatasetConfig) validate() error {
	if d.Path == "" {
		return errors.New(`"path" is required`)
	}
	if len(d.Splits) == 0 {
		return errors.New(`"splits" is required`)
	}
	for _, s := range d.Splits {
		if !dataset.Split(s).Valid() {
			return errors.Errorf("unknown split %q", s)
		}
	}
	return nil
}

// Write stores the config as indented JSON at filePath, creating parent
// directories as needed.
func (c *CatalogConfig) Write(filePath string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	md, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, md, 0o600)
}
