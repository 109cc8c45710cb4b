package dataset

import (
	"context"
	"io"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/ml"
)

// Transform maps one sample input to a new tensor, e.g. normalization or an
// augmentation. The caller decides per phase which transform to pass; the
// dataset never stores one.
type Transform func(*tensor.Dense) (*tensor.Dense, error)

// LoaderConfig configures batched iteration over a dataset.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
	Transform Transform
}

// Batch is one stacked batch of samples: the inputs merged into a single
// tensor whose leading dimension is the batch, plus the matching labels.
type Batch struct {
	Inputs *tensor.Dense
	Labels []int
}

// Loader iterates a dataset, or one of its subsets, in batches. Next returns
// io.EOF after the final batch; Reset rewinds.
type Loader struct {
	samples []Sample
	order   []int
	cfg     LoaderConfig
	pos     int
}

// NewLoader returns a loader over the whole dataset.
func (d *Dataset) NewLoader(cfg LoaderConfig) (*Loader, error) {
	return newLoader(d.samples, cfg)
}

// NewSubsetLoader returns a loader over one recorded subset, or
// ErrSubsetNotFound when the dataset does not carry it.
func (d *Dataset) NewSubsetLoader(split Split, cfg LoaderConfig) (*Loader, error) {
	r, ok := d.subsets[split]
	if !ok {
		return nil, errors.Wrapf(ErrSubsetNotFound, "dataset %q has no %q subset", d.name, split)
	}
	return newLoader(d.samples[r.Start:r.End], cfg)
}

// NewSubsetLoaderOrWhole returns a loader over the given subset when the
// dataset records it and over the whole dataset otherwise.
func (d *Dataset) NewSubsetLoaderOrWhole(split Split, cfg LoaderConfig) (*Loader, error) {
	loader, err := d.NewSubsetLoader(split, cfg)
	if errors.Is(err, ErrSubsetNotFound) {
		return d.NewLoader(cfg)
	}
	return loader, err
}

func newLoader(samples []Sample, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if len(samples) == 0 {
		return nil, errors.New("no samples to iterate")
	}
	l := &Loader{samples: samples, cfg: cfg}
	l.order = make([]int, len(samples))
	for i := range l.order {
		l.order[i] = i
	}
	if cfg.Shuffle {
		//nolint:gosec
		r := rand.New(rand.NewSource(cfg.Seed))
		r.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	return l, nil
}

// NumSamples returns how many samples the loader iterates.
func (l *Loader) NumSamples() int { return len(l.samples) }

// NumBatches returns how many batches a full pass yields.
func (l *Loader) NumBatches() int {
	return (len(l.samples) + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Reset rewinds the loader to the first batch. The shuffle order is kept.
func (l *Loader) Reset() { l.pos = 0 }

// Next returns the next batch, or io.EOF once the pass is complete.
func (l *Loader) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if l.pos >= len(l.order) {
		return Batch{}, io.EOF
	}
	end := l.pos + l.cfg.BatchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	indices := l.order[l.pos:end]
	l.pos = end
	return l.stack(indices)
}

// stack merges the selected samples into one batch tensor, applying the
// configured transform per sample first. All inputs in a batch must share
// one shape.
func (l *Loader) stack(indices []int) (Batch, error) {
	var shape tensor.Shape
	var backing []float64
	labels := make([]int, 0, len(indices))
	for bi, i := range indices {
		input := l.samples[i].Input
		if l.cfg.Transform != nil {
			transformed, err := l.cfg.Transform(input)
			if err != nil {
				return Batch{}, errors.Wrapf(err, "transforming sample %d", i)
			}
			if transformed == nil {
				return Batch{}, errors.Errorf("transform returned no tensor for sample %d", i)
			}
			input = transformed
		}
		data, err := ml.ToFloat64Slice(input.Data())
		if err != nil {
			return Batch{}, errors.Wrapf(err, "sample %d", i)
		}
		if bi == 0 {
			shape = input.Shape()
			backing = make([]float64, 0, len(indices)*len(data))
		} else if !input.Shape().Eq(shape) {
			return Batch{}, errors.Errorf("sample %d shape %v does not match batch shape %v", i, input.Shape(), shape)
		}
		backing = append(backing, data...)
		labels = append(labels, l.samples[i].Label)
	}
	batchShape := append([]int{len(indices)}, shape...)
	return Batch{
		Inputs: tensor.New(tensor.WithShape(batchShape...), tensor.WithBacking(backing)),
		Labels: labels,
	}, nil
}
