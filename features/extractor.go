// Package features turns backbone activations into flat feature matrices: a
// partial forward to a chosen child layer, spatial pooling and flattening.
package features

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/backbone"
	"github.com/ashahba/transfer-learning/ml"
)

// PoolKind names a spatial pooling operation.
type PoolKind string

// The supported poolings.
const (
	PoolAvg PoolKind = "avg"
	PoolMax PoolKind = "max"
)

// Valid reports whether k names a supported pooling.
func (k PoolKind) Valid() bool { return k == PoolAvg || k == PoolMax }

// encoderHolder lets siamese wrappers expose the model features are extracted
// from.
type encoderHolder interface {
	Encoder() backbone.Backbone
}

// Extractor computes feature rows from a chosen child layer of a backbone.
// The binding is validated once at construction and immutable afterwards.
type Extractor struct {
	model  backbone.Backbone
	layer  string
	pool   PoolKind
	kernel int
	logger golog.Logger
}

// NewExtractor binds an extractor to a backbone layer. When the backbone is a
// siamese pair the layer is resolved against its encoder. The layer must name
// a direct child, the pooling kind must be known and the kernel positive.
func NewExtractor(
	b backbone.Backbone,
	layer string,
	pool PoolKind,
	kernel int,
	logger golog.Logger,
) (*Extractor, error) {
	if b == nil {
		return nil, errors.New("backbone is nil")
	}
	if holder, ok := b.(encoderHolder); ok {
		b = holder.Encoder()
	}
	if !pool.Valid() {
		return nil, errors.Errorf("unknown pooling %q, expected %q or %q", pool, PoolAvg, PoolMax)
	}
	if kernel < 1 {
		return nil, errors.Errorf("kernel size must be positive, got %d", kernel)
	}
	children := b.Children()
	supported := false
	for _, c := range children {
		if c == layer {
			supported = true
			break
		}
	}
	if !supported {
		return nil, errors.Errorf("extracting features from layer %q is not supported, supported layers: %v",
			layer, children)
	}
	return &Extractor{model: b, layer: layer, pool: pool, kernel: kernel, logger: logger}, nil
}

// Layer returns the child layer features are read from.
func (e *Extractor) Layer() string { return e.layer }

// Extract runs a partial forward over one stacked batch and returns the
// pooled and flattened feature rows, one row per sample in batch order.
func (e *Extractor) Extract(ctx context.Context, batch *tensor.Dense) (*mat.Dense, error) {
	act, err := e.model.Forward(ctx, batch, e.layer)
	if err != nil {
		return nil, err
	}
	shape := act.Shape()
	if len(shape) != 4 {
		return nil, errors.Errorf("layer %q activation must have 4 dimensions to pool, got shape %v", e.layer, shape)
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if e.kernel > h || e.kernel > w {
		return nil, errors.Errorf("kernel size %d exceeds the %dx%d spatial size of layer %q",
			e.kernel, h, w, e.layer)
	}
	data, err := ml.ToFloat64Slice(act.Data())
	if err != nil {
		return nil, err
	}
	features := poolFlatten(data, n, c, h, w, e.kernel, e.pool)
	_, dim := features.Dims()
	e.logger.Debugw("features extracted", "layer", e.layer, "samples", n, "dimension", dim)
	return features, nil
}
