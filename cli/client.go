// Package cli contains all business logic needed by the CLI command.
package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ashahba/transfer-learning/anomaly"
	"github.com/ashahba/transfer-learning/backbone"
	"github.com/ashahba/transfer-learning/config"
	"github.com/ashahba/transfer-learning/dataset"
	"github.com/ashahba/transfer-learning/dataset/catalog"
	"github.com/ashahba/transfer-learning/features"
	"github.com/ashahba/transfer-learning/utils"
)

// tltClient wraps a cli.Context and provides all the CLI command functionality
// needed to load cataloged datasets and drive the transfer learning models.
type tltClient struct {
	c       *cli.Context
	conf    *config.CatalogConfig
	catalog *catalog.Directory
	logger  golog.Logger
}

func newTltClient(c *cli.Context) (*tltClient, error) {
	var logger golog.Logger
	if c.Bool(generalFlagDebug) {
		logger = golog.NewDebugLogger("cli")
	} else {
		logger = zap.NewNop().Sugar()
	}

	path := c.String(generalFlagCatalog)
	if path == "" {
		path = config.DefaultCatalogPath()
	}
	conf, err := config.Read(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read the catalog config from %s", path)
	}
	cat, err := catalog.NewDirectory(conf, logger)
	if err != nil {
		return nil, err
	}
	return &tltClient{c: c, conf: conf, catalog: cat, logger: logger}, nil
}

// loadDataset loads the dataset and splits the command flags name.
func (t *tltClient) loadDataset(c *cli.Context) (*dataset.Dataset, error) {
	names := c.StringSlice(datasetFlagSplits)
	splits := make([]dataset.Split, 0, len(names))
	for _, s := range names {
		splits = append(splits, dataset.Split(s))
	}
	return dataset.FromCatalog(c.Context, t.catalog, c.String(datasetFlagDataset), splits, t.logger)
}

// detector builds an anomaly detector over the backbone and extraction point
// the command flags name.
func (t *tltClient) detector(c *cli.Context) (*anomaly.Detector, error) {
	name := c.String(modelFlagBackbone)
	ctor, ok := backbone.Lookup(name)
	if !ok {
		return nil, errors.Errorf("unknown backbone %q, registered: %v", name, backbone.RegisteredNames())
	}
	b, err := ctor(t.logger)
	if err != nil {
		return nil, err
	}
	return anomaly.NewDetector(
		name,
		b,
		c.String(modelFlagLayer),
		features.PoolKind(c.String(modelFlagPooling)),
		c.Int(modelFlagKernelSize),
		t.logger,
	)
}

// transformFromFlags returns the per sample normalization, or nil when none
// was requested.
func transformFromFlags(c *cli.Context) dataset.Transform {
	if !c.IsSet(batchFlagNormalizeMean) && !c.IsSet(batchFlagNormalizeStd) {
		return nil
	}
	return dataset.Normalize(c.Float64(batchFlagNormalizeMean), c.Float64(batchFlagNormalizeStd))
}

// subspacePath is where train stores the fitted subspace of a model.
func subspacePath(outputDir, model string) string {
	return filepath.Join(outputDir, utils.SafeFileName(model)+"_subspace.bin")
}

func printf(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintf(w, format+"\n", a...)
}
