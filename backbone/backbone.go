// Package backbone defines the backbone models the toolkit runs partial
// forward passes on: named child layers, state dicts and a registry of
// constructors. Layer math belongs to the embedding framework; the toolkit
// only orchestrates it.
package backbone

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/ml"
	"github.com/ashahba/transfer-learning/utils"
)

// Backbone is a model the toolkit can extract features from.
type Backbone interface {
	// Name identifies the architecture, e.g. "tinynet".
	Name() string
	// Children returns the names of the direct child layers in forward order.
	Children() []string
	// Forward runs the model over input through the child named by upto,
	// inclusive, and returns that layer's activation. Forward never mutates
	// the weights.
	Forward(ctx context.Context, input *tensor.Dense, upto string) (*tensor.Dense, error)
	// StateDict returns the weights keyed "child.param". The returned tensors
	// are the live parameters; frameworks update them in place.
	StateDict() ml.Tensors
	// LoadStateDict replaces parameters by key with clones of the given
	// tensors. When strict, the keys must cover the model exactly; otherwise
	// unknown keys are skipped.
	LoadStateDict(weights ml.Tensors, strict bool) error
}

// LayerFunc is one child layer's forward computation over a batch. The
// toolkit treats it as opaque framework code.
type LayerFunc func(input *tensor.Dense, params ml.Tensors) (*tensor.Dense, error)

// Layer is a named child of a sequential backbone.
type Layer struct {
	Name    string
	Forward LayerFunc
	Params  ml.Tensors
}

// Sequential is a backbone running its children in order.
type Sequential struct {
	name   string
	layers []Layer
	index  map[string]int
}

// NewSequential builds a sequential backbone from the given layers. Layer
// names must be unique and non-empty and every layer needs a forward
// function.
func NewSequential(name string, layers ...Layer) (*Sequential, error) {
	if name == "" {
		return nil, errors.New("backbone name is empty")
	}
	if len(layers) == 0 {
		return nil, errors.New("backbone needs at least one layer")
	}
	index := make(map[string]int, len(layers))
	for i, l := range layers {
		if l.Name == "" {
			return nil, errors.Errorf("layer %d has no name", i)
		}
		if l.Forward == nil {
			return nil, errors.Errorf("layer %q has no forward function", l.Name)
		}
		if _, ok := index[l.Name]; ok {
			return nil, errors.Errorf("duplicate layer name %q", l.Name)
		}
		index[l.Name] = i
	}
	return &Sequential{name: name, layers: layers, index: index}, nil
}

// Name returns the architecture name.
func (s *Sequential) Name() string { return s.name }

// Children returns the layer names in forward order.
func (s *Sequential) Children() []string {
	names := make([]string, len(s.layers))
	for i, l := range s.layers {
		names[i] = l.Name
	}
	return names
}

// Forward runs the layers in order through upto, inclusive.
func (s *Sequential) Forward(ctx context.Context, input *tensor.Dense, upto string) (*tensor.Dense, error) {
	if input == nil {
		return nil, errors.New("input tensor is nil")
	}
	last, ok := s.index[upto]
	if !ok {
		return nil, errors.Errorf("unknown layer %q, supported layers: %v", upto, s.Children())
	}
	out := input
	for i := 0; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := s.layers[i]
		next, err := l.Forward(out, l.Params)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %q", l.Name)
		}
		if next == nil {
			return nil, errors.Errorf("layer %q returned no activation", l.Name)
		}
		out = next
	}
	return out, nil
}

// Output runs the model through all of its children.
func (s *Sequential) Output(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	return s.Forward(ctx, input, s.layers[len(s.layers)-1].Name)
}

// StateDict returns the weights keyed "child.param".
func (s *Sequential) StateDict() ml.Tensors {
	out := ml.Tensors{}
	for _, l := range s.layers {
		for name, t := range l.Params {
			out[l.Name+"."+name] = t
		}
	}
	return out
}

// LoadStateDict replaces parameters by key with clones of the given tensors.
func (s *Sequential) LoadStateDict(weights ml.Tensors, strict bool) error {
	loaded := map[string]bool{}
	for key, value := range weights {
		layerName, paramName, cut := strings.Cut(key, ".")
		var params ml.Tensors
		if cut {
			if i, ok := s.index[layerName]; ok {
				params = s.layers[i].Params
			}
		}
		if params == nil || params[paramName] == nil {
			if strict {
				return errors.Errorf("unexpected parameter %q, model has %v", key, ml.TensorNames(s.StateDict()))
			}
			continue
		}
		existing := params[paramName]
		if !existing.Shape().Eq(value.Shape()) {
			return errors.Errorf("parameter %q has shape %v, expected %v", key, value.Shape(), existing.Shape())
		}
		cloned, err := utils.AssertType[*tensor.Dense](value.Clone())
		if err != nil {
			return errors.Wrapf(err, "parameter %q", key)
		}
		params[paramName] = cloned
		loaded[key] = true
	}
	if strict {
		for key := range s.StateDict() {
			if !loaded[key] {
				return errors.Errorf("missing parameter %q", key)
			}
		}
	}
	return nil
}
