package backbone

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/ml"
	"github.com/ashahba/transfer-learning/utils"
)

// NewScale returns a layer multiplying its input elementwise by a single
// learned scale, initialized to 1. It preserves the input shape, which makes
// it a convenient stand-in for shape-preserving framework layers.
func NewScale(name string) Layer {
	return Layer{
		Name: name,
		Params: ml.Tensors{
			"weight": tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{1})),
		},
		Forward: func(input *tensor.Dense, params ml.Tensors) (*tensor.Dense, error) {
			w, err := scalarOf(params["weight"])
			if err != nil {
				return nil, err
			}
			return input.MulScalar(w, true)
		},
	}
}

// NewLinear returns a dense layer with an in x out weight matrix applied to
// 2-dimensional inputs of shape (batch, in). Weights start from a seeded
// uniform spread so constructions are repeatable.
func NewLinear(name string, in, out int, seed int64) Layer {
	//nolint:gosec
	r := rand.New(rand.NewSource(seed))
	backing := make([]float64, in*out)
	limit := 1 / math.Sqrt(float64(in))
	for i := range backing {
		backing[i] = (2*r.Float64() - 1) * limit
	}
	weight := tensor.New(tensor.WithShape(in, out), tensor.WithBacking(backing))
	return Layer{
		Name:   name,
		Params: ml.Tensors{"weight": weight},
		Forward: func(input *tensor.Dense, params ml.Tensors) (*tensor.Dense, error) {
			w := params["weight"]
			if w == nil {
				return nil, errors.New("missing weight tensor")
			}
			if input.Dims() != 2 {
				return nil, errors.Errorf("linear layer expects a 2-dimensional input, got shape %v", input.Shape())
			}
			prod, err := tensor.MatMul(input, w)
			if err != nil {
				return nil, err
			}
			return utils.AssertType[*tensor.Dense](prod)
		},
	}
}

// NewChannelHead returns a shape-agnostic classification head: it averages
// activations over every dimension past the channel one, leaving a
// (batch, channels) output scaled by a learned scalar.
func NewChannelHead(name string) Layer {
	return Layer{
		Name: name,
		Params: ml.Tensors{
			"weight": tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{1})),
		},
		Forward: func(input *tensor.Dense, params ml.Tensors) (*tensor.Dense, error) {
			w, err := scalarOf(params["weight"])
			if err != nil {
				return nil, err
			}
			shape := input.Shape()
			if len(shape) < 2 {
				return nil, errors.Errorf("channel head expects at least 2 dimensions, got shape %v", shape)
			}
			data, err := ml.ToFloat64Slice(input.Data())
			if err != nil {
				return nil, err
			}
			n, c := shape[0], shape[1]
			rest := 1
			for _, dim := range shape[2:] {
				rest *= dim
			}
			out := make([]float64, n*c)
			for i := 0; i < n; i++ {
				for j := 0; j < c; j++ {
					sum := 0.0
					base := (i*c + j) * rest
					for k := 0; k < rest; k++ {
						sum += data[base+k]
					}
					out[i*c+j] = w * sum / float64(rest)
				}
			}
			return tensor.New(tensor.WithShape(n, c), tensor.WithBacking(out)), nil
		},
	}
}

func scalarOf(t *tensor.Dense) (float64, error) {
	if t == nil {
		return 0, errors.New("missing weight tensor")
	}
	data, err := ml.ToFloat64Slice(t.Data())
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, errors.Errorf("expected a single element weight, got %d", len(data))
	}
	return data[0], nil
}
