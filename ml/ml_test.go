package ml

import (
	"testing"

	"go.viam.com/test"
	"gorgonia.org/tensor"
)

func TestTensorNames(t *testing.T) {
	ts := Tensors{
		"weight": tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{1, 2})),
		"bias":   tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{0})),
	}
	test.That(t, TensorNames(ts), test.ShouldResemble, []string{"bias", "weight"})
	test.That(t, TensorNames(nil), test.ShouldHaveLength, 0)
}

func TestCloneTensors(t *testing.T) {
	orig := Tensors{
		"weight": tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{1, 2, 3, 4})),
	}
	cloned, err := CloneTensors(orig)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloned, test.ShouldHaveLength, 1)
	test.That(t, cloned["weight"].Data(), test.ShouldResemble, []float64{1, 2, 3, 4})

	// mutating the clone must not touch the original
	test.That(t, cloned["weight"].SetAt(9.0, 0, 0), test.ShouldBeNil)
	test.That(t, orig["weight"].Data(), test.ShouldResemble, []float64{1, 2, 3, 4})
}

func TestToFloat64Slice(t *testing.T) {
	got, err := ToFloat64Slice([]float32{1.5, 2.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []float64{1.5, 2.5})

	got, err = ToFloat64Slice([]int32{3, -4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []float64{3, -4})

	got, err = ToFloat64Slice([]uint8{0, 255})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []float64{0, 255})

	got, err = ToFloat64Slice([]float64{6})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []float64{6})

	_, err = ToFloat64Slice("not numbers")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dont know how to convert")
}
