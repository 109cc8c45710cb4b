package dataset

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/ml"
)

// Normalize returns a transform that standardizes every element with the
// given mean and standard deviation.
func Normalize(mean, std float64) Transform {
	return func(in *tensor.Dense) (*tensor.Dense, error) {
		if std == 0 {
			return nil, errors.New("normalize std is zero")
		}
		data, err := ml.ToFloat64Slice(in.Data())
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = (v - mean) / std
		}
		return tensor.New(tensor.WithShape(in.Shape()...), tensor.WithBacking(out)), nil
	}
}

// Chain composes transforms left to right.
func Chain(transforms ...Transform) Transform {
	return func(in *tensor.Dense) (*tensor.Dense, error) {
		out := in
		for _, tr := range transforms {
			var err error
			if out, err = tr(out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}
