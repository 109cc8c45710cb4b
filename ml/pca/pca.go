// Package pca fits principal component subspaces to feature matrices and
// applies them for projection and reconstruction.
package pca

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned when a subspace is used before being fitted.
var ErrNotFitted = errors.New("principal subspace has not been fitted")

// Subspace is a fitted principal component subspace: the column means of the
// fitting matrix, an orthonormal component matrix and the per-component
// explained variance ratios. It is written once by Fit and read-only after.
type Subspace struct {
	mean       []float64
	components *mat.Dense
	ratios     []float64
}

// Fit computes a principal component decomposition of features (rows are
// samples, columns are feature dimensions) and keeps the smallest number of
// leading components whose cumulative explained variance ratio reaches
// threshold. The threshold must lie strictly between 0 and 1.
func Fit(features mat.Matrix, threshold float64) (*Subspace, error) {
	if features == nil {
		return nil, errors.New("feature matrix is nil")
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, errors.Errorf("threshold should be a float between 0 and 1, got %v", threshold)
	}
	n, d := features.Dims()
	if n < 2 {
		return nil, errors.Errorf("fitting a subspace requires at least 2 samples, got %d", n)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(features, nil); !ok {
		return nil, errors.New("principal component decomposition failed")
	}
	vars := pc.VarsTo(nil)
	total := floats.Sum(vars)
	if total == 0 {
		return nil, errors.New("feature matrix has zero variance")
	}

	k := len(vars)
	cumulative := 0.0
	for i, v := range vars {
		cumulative += v / total
		if cumulative >= threshold {
			k = i + 1
			break
		}
	}

	vecs := pc.VectorsTo(nil)
	sub := &Subspace{
		mean:       make([]float64, d),
		components: mat.DenseCopyOf(vecs.Slice(0, d, 0, k)),
		ratios:     make([]float64, k),
	}
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, features)
		sub.mean[j] = stat.Mean(col, nil)
	}
	for i := 0; i < k; i++ {
		sub.ratios[i] = vars[i] / total
	}
	return sub, nil
}

func (s *Subspace) check() error {
	if s == nil || s.components == nil {
		return ErrNotFitted
	}
	return nil
}

// NumComponents returns the number of retained components, zero when the
// subspace is not fitted.
func (s *Subspace) NumComponents() int {
	if s.check() != nil {
		return 0
	}
	_, k := s.components.Dims()
	return k
}

// Dim returns the feature dimension the subspace was fitted on.
func (s *Subspace) Dim() int {
	if s.check() != nil {
		return 0
	}
	return len(s.mean)
}

// ExplainedVarianceRatio returns the per-component explained variance ratios
// of the retained components, in decreasing order.
func (s *Subspace) ExplainedVarianceRatio() []float64 {
	if s.check() != nil {
		return nil
	}
	out := make([]float64, len(s.ratios))
	copy(out, s.ratios)
	return out
}

// Project maps each row of x into the subspace by centering it on the fitted
// means and multiplying with the component matrix. The input is not modified.
func (s *Subspace) Project(x mat.Matrix) (*mat.Dense, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	n, d := x.Dims()
	if d != len(s.mean) {
		return nil, errors.Errorf("feature dimension mismatch: subspace fitted on %d columns, got %d", len(s.mean), d)
	}
	centered := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, x.At(i, j)-s.mean[j])
		}
	}
	_, k := s.components.Dims()
	proj := mat.NewDense(n, k, nil)
	proj.Mul(centered, s.components)
	return proj, nil
}

// Reconstruct maps projected rows back into the original feature space by
// multiplying with the transposed component matrix and adding the fitted
// means back on.
func (s *Subspace) Reconstruct(y mat.Matrix) (*mat.Dense, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	n, k := y.Dims()
	_, kept := s.components.Dims()
	if k != kept {
		return nil, errors.Errorf("component dimension mismatch: subspace retains %d components, got %d", kept, k)
	}
	d := len(s.mean)
	out := mat.NewDense(n, d, nil)
	out.Mul(y, s.components.T())
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			out.Set(i, j, out.At(i, j)+s.mean[j])
		}
	}
	return out, nil
}
