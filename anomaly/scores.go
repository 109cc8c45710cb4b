// Package anomaly scores samples by how poorly a principal subspace
// reconstructs their features and turns those scores into thresholds and
// class calls. It also hosts the anomaly detection model built on top.
package anomaly

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ashahba/transfer-learning/ml/pca"
)

// Label is a predicted anomaly class.
type Label string

// The classes prediction can return.
const (
	LabelGood Label = "good"
	LabelBad  Label = "bad"
)

// Scores computes one anomaly score per feature row: the negated squared
// error of reconstructing the row through the subspace. Higher scores mean
// more normal.
func Scores(features mat.Matrix, sub *pca.Subspace) ([]float64, error) {
	if features == nil {
		return nil, errors.New("feature matrix is nil")
	}
	proj, err := sub.Project(features)
	if err != nil {
		return nil, err
	}
	rec, err := sub.Reconstruct(proj)
	if err != nil {
		return nil, err
	}
	n, d := features.Dims()
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < d; j++ {
			diff := features.At(i, j) - rec.At(i, j)
			sum += diff * diff
		}
		// 0-sum rather than -sum keeps perfectly reconstructed rows at +0
		scores[i] = 0 - sum
	}
	return scores, nil
}

// Classify calls each score against the threshold: strictly below means
// "bad", at or above means "good".
func Classify(scores []float64, threshold float64) []Label {
	out := make([]Label, len(scores))
	for i, s := range scores {
		if s < threshold {
			out[i] = LabelBad
		} else {
			out[i] = LabelGood
		}
	}
	return out
}
