// Package dataset models the datasets the toolkit trains on: ordered samples
// assembled from catalog splits, named subset ranges and batched loaders.
package dataset

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Split names a partition of a dataset.
type Split string

// The splits a catalog may serve.
const (
	SplitTrain        Split = "train"
	SplitTest         Split = "test"
	SplitValidation   Split = "validation"
	SplitUnsupervised Split = "unsupervised"
)

// concatOrder is the fixed order loaded splits are concatenated in,
// independent of the order they were requested in.
var concatOrder = []Split{SplitTrain, SplitTest, SplitValidation, SplitUnsupervised}

// Valid reports whether s is a known split name.
func (s Split) Valid() bool {
	switch s {
	case SplitTrain, SplitTest, SplitValidation, SplitUnsupervised:
		return true
	default:
		return false
	}
}

// Unlabeled marks samples without a ground truth label. Only samples of the
// unsupervised split may carry it.
const Unlabeled = -1

// Sample pairs one input tensor with its integer class label.
type Sample struct {
	Input *tensor.Dense
	Label int
}

// Range is a half-open [Start, End) index interval into a dataset.
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices the range covers.
func (r Range) Len() int { return r.End - r.Start }

// ValidationMode says how evaluation should pick data when no explicit subset
// is requested.
type ValidationMode string

const (
	// ValidationRecall means no held-out subset exists and evaluation falls
	// back to the whole dataset.
	ValidationRecall ValidationMode = "recall"
	// ValidationDefinedSplit means the dataset carries explicit subsets.
	ValidationDefinedSplit ValidationMode = "defined_split"
)

// CatalogEntry describes one dataset a catalog can serve.
type CatalogEntry struct {
	Name        string
	Description string
	ClassNames  []string
	Splits      []Split
}

// Catalog serves named datasets one split at a time.
type Catalog interface {
	// Names returns the sorted names of the datasets the catalog can load.
	Names() []string
	// Entry returns the description of a single dataset.
	Entry(name string) (CatalogEntry, error)
	// Load returns the samples of one split of a dataset.
	Load(ctx context.Context, name string, split Split) ([]Sample, error)
}

// ErrSubsetNotFound is returned when a dataset does not carry a requested subset.
var ErrSubsetNotFound = errors.New("dataset does not have the requested subset")

// Dataset holds the concatenated samples of the requested splits of a catalog
// dataset together with the index range each loaded split occupies. It is
// assembled once and read-only afterwards.
type Dataset struct {
	name       string
	classNames []string
	samples    []Sample
	subsets    map[Split]Range
	mode       ValidationMode
	logger     golog.Logger
}

// FromCatalog loads the requested splits of the named catalog dataset. With a
// single requested split no subset ranges are recorded and validation falls
// back to recall mode. With several, each loaded split is concatenated in the
// fixed order train, test, validation, unsupervised and its index range is
// recorded at the running offset.
func FromCatalog(
	ctx context.Context,
	cat Catalog,
	name string,
	splits []Split,
	logger golog.Logger,
) (*Dataset, error) {
	if cat == nil {
		return nil, errors.New("catalog is nil")
	}
	if len(splits) == 0 {
		return nil, errors.New("at least one split must be requested")
	}
	requested := map[Split]bool{}
	for _, s := range splits {
		if !s.Valid() {
			return nil, errors.Errorf("unknown split %q, expected one of %v", s, concatOrder)
		}
		if requested[s] {
			return nil, errors.Errorf("split %q requested more than once", s)
		}
		requested[s] = true
	}

	entry, err := cat.Entry(name)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		name:       name,
		classNames: entry.ClassNames,
		subsets:    map[Split]Range{},
		mode:       ValidationRecall,
		logger:     logger,
	}

	if len(splits) == 1 {
		samples, err := cat.Load(ctx, name, splits[0])
		if err != nil {
			return nil, errors.Wrapf(err, "loading split %q of %q", splits[0], name)
		}
		if err := checkSamples(samples, splits[0]); err != nil {
			return nil, err
		}
		ds.samples = samples
		logger.Debugw("dataset loaded",
			"dataset", name, "split", splits[0], "samples", len(samples), "validation", ds.mode)
		return ds, nil
	}

	ds.mode = ValidationDefinedSplit
	for _, s := range concatOrder {
		if !requested[s] {
			continue
		}
		samples, err := cat.Load(ctx, name, s)
		if err != nil {
			return nil, errors.Wrapf(err, "loading split %q of %q", s, name)
		}
		if err := checkSamples(samples, s); err != nil {
			return nil, err
		}
		start := len(ds.samples)
		ds.samples = append(ds.samples, samples...)
		ds.subsets[s] = Range{Start: start, End: len(ds.samples)}
	}
	logger.Debugw("dataset loaded",
		"dataset", name, "samples", len(ds.samples), "subsets", ds.Subsets(), "validation", ds.mode)
	return ds, nil
}

func checkSamples(samples []Sample, split Split) error {
	for i, s := range samples {
		if s.Input == nil {
			return errors.Errorf("split %q sample %d has no input tensor", split, i)
		}
		if split != SplitUnsupervised && s.Label == Unlabeled {
			return errors.Errorf("split %q sample %d is unlabeled", split, i)
		}
	}
	return nil
}

// Name returns the catalog name the dataset was loaded from.
func (d *Dataset) Name() string { return d.name }

// ClassNames returns the class names of the dataset, index-aligned with
// sample labels.
func (d *Dataset) ClassNames() []string {
	out := make([]string, len(d.classNames))
	copy(out, d.classNames)
	return out
}

// Len returns the total number of samples across all loaded splits.
func (d *Dataset) Len() int { return len(d.samples) }

// Sample returns the i-th sample of the concatenated dataset.
func (d *Dataset) Sample(i int) Sample { return d.samples[i] }

// Mode returns the validation mode decided at construction.
func (d *Dataset) Mode() ValidationMode { return d.mode }

// Subset returns the index range of a loaded split, if recorded.
func (d *Dataset) Subset(s Split) (Range, bool) {
	r, ok := d.subsets[s]
	return r, ok
}

// Subsets returns a copy of the recorded subset ranges.
func (d *Dataset) Subsets() map[Split]Range {
	out := make(map[Split]Range, len(d.subsets))
	for s, r := range d.subsets {
		out[s] = r
	}
	return out
}
