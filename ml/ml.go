// Package ml provides some fundamental machine learning primitives shared by
// the transfer learning models.
package ml

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/utils"
)

// Tensors is a data structure to hold the named tensors a model takes in or
// gives out, e.g. a batch of inputs or the weights of a layer.
type Tensors map[string]*tensor.Dense

// TensorNames returns the sorted names of the tensors.
func TensorNames(ts Tensors) []string {
	names := make([]string, 0, len(ts))
	for name := range ts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloneTensors deep-copies the given tensors so that the copy can be mutated
// or stored without aliasing the originals.
func CloneTensors(ts Tensors) (Tensors, error) {
	out := make(Tensors, len(ts))
	for name, t := range ts {
		cloned, err := utils.AssertType[*tensor.Dense](t.Clone())
		if err != nil {
			return nil, errors.Wrapf(err, "cannot clone tensor %q", name)
		}
		out[name] = cloned
	}
	return out, nil
}

// number interface for converting between numbers.
type number interface {
	constraints.Integer | constraints.Float
}

// convertNumberSlice converts any number slice into another number slice.
func convertNumberSlice[T1, T2 number](t1 []T1) []T2 {
	t2 := make([]T2, len(t1))
	for i := range t1 {
		t2[i] = T2(t1[i])
	}
	return t2
}

// ToFloat64Slice converts the underlying data slice of a tensor into a
// []float64 regardless of the stored numeric type.
func ToFloat64Slice(slice interface{}) ([]float64, error) {
	switch v := slice.(type) {
	case []float64:
		return v, nil
	case []float32:
		return convertNumberSlice[float32, float64](v), nil
	case []int:
		return convertNumberSlice[int, float64](v), nil
	case []uint:
		return convertNumberSlice[uint, float64](v), nil
	case []int8:
		return convertNumberSlice[int8, float64](v), nil
	case []int16:
		return convertNumberSlice[int16, float64](v), nil
	case []int32:
		return convertNumberSlice[int32, float64](v), nil
	case []int64:
		return convertNumberSlice[int64, float64](v), nil
	case []uint8:
		return convertNumberSlice[uint8, float64](v), nil
	case []uint16:
		return convertNumberSlice[uint16, float64](v), nil
	case []uint32:
		return convertNumberSlice[uint32, float64](v), nil
	case []uint64:
		return convertNumberSlice[uint64, float64](v), nil
	default:
		return nil, errors.Errorf("dont know how to convert slice of %T into a []float64", slice)
	}
}
