package simsiam

import (
	"testing"

	"go.viam.com/test"
)

func TestInitLR(t *testing.T) {
	test.That(t, InitLR(0.2, 256), test.ShouldAlmostEqual, 0.2, 1e-12)
	test.That(t, InitLR(0.2, 128), test.ShouldAlmostEqual, 0.1, 1e-12)
	test.That(t, InitLR(0.2, 512), test.ShouldAlmostEqual, 0.4, 1e-12)
	test.That(t, InitLR(DefaultBaseLR, 256), test.ShouldAlmostEqual, DefaultBaseLR, 1e-12)

	// the scaling is linear in the batch size
	one := InitLR(0.3, 1)
	for _, batch := range []int{2, 16, 64} {
		test.That(t, InitLR(0.3, batch), test.ShouldAlmostEqual, one*float64(batch), 1e-12)
	}
}

func TestCosineLR(t *testing.T) {
	test.That(t, CosineLR(1, 0, 100), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, CosineLR(1, 50, 100), test.ShouldAlmostEqual, 0.5, 1e-12)
	test.That(t, CosineLR(1, 100, 100), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, CosineLR(0.4, 0, 10), test.ShouldAlmostEqual, 0.4, 1e-12)

	for epoch := 0; epoch < 9; epoch++ {
		test.That(t, CosineLR(1, epoch, 10), test.ShouldBeGreaterThan, CosineLR(1, epoch+1, 10))
	}
}

func TestNegativeCosineSimilarity(t *testing.T) {
	test.That(t, NegativeCosineSimilarity([]float64{1, 0}, []float64{1, 0}), test.ShouldAlmostEqual, -1, 1e-12)
	test.That(t, NegativeCosineSimilarity([]float64{2, 0}, []float64{1, 0}), test.ShouldAlmostEqual, -1, 1e-12)
	test.That(t, NegativeCosineSimilarity([]float64{1, 0}, []float64{0, 1}), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, NegativeCosineSimilarity([]float64{1, 0}, []float64{-1, 0}), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, NegativeCosineSimilarity([]float64{0, 0}, []float64{1, 0}), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, NegativeCosineSimilarity([]float64{3, 4}, []float64{3, 4}), test.ShouldAlmostEqual, -1, 1e-12)
}
