// Package catalog provides the catalog implementations that serve datasets
// to the toolkit: a config-backed directory catalog reading gob split files
// and an in-memory catalog for tests and examples.
package catalog

import (
	"github.com/pkg/errors"
)

// ErrDatasetNotFound is returned when a requested dataset is not in the
// catalog.
var ErrDatasetNotFound = errors.New("dataset is not in the catalog")
