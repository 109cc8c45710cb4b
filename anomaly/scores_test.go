package anomaly

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/ashahba/transfer-learning/ml/pca"
)

func axisSubspace(t *testing.T, threshold float64) *pca.Subspace {
	t.Helper()
	features := mat.NewDense(6, 3, []float64{
		5, 0, 0,
		-5, 0, 0,
		0, 4, 0,
		0, -4, 0,
		0, 0, 3,
		0, 0, -3,
	})
	sub, err := pca.Fit(features, threshold)
	test.That(t, err, test.ShouldBeNil)
	return sub
}

func TestScores(t *testing.T) {
	sub := axisSubspace(t, 0.45)
	test.That(t, sub.NumComponents(), test.ShouldEqual, 1)

	scores, err := Scores(mat.NewDense(3, 3, []float64{
		5, 0, 0,
		0, 4, 0,
		0, 0, 3,
	}), sub)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scores, test.ShouldHaveLength, 3)
	test.That(t, scores[0], test.ShouldAlmostEqual, 0, 1e-8)
	test.That(t, scores[1], test.ShouldAlmostEqual, -16, 1e-8)
	test.That(t, scores[2], test.ShouldAlmostEqual, -9, 1e-8)
}

func TestScoresFullRankIsLossless(t *testing.T) {
	sub := axisSubspace(t, 0.99)
	test.That(t, sub.NumComponents(), test.ShouldEqual, 3)

	scores, err := Scores(mat.NewDense(2, 3, []float64{
		1, 2, 3,
		-4, 0, 2,
	}), sub)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scores[0], test.ShouldAlmostEqual, 0, 1e-8)
	test.That(t, scores[1], test.ShouldAlmostEqual, 0, 1e-8)
}

func TestScoresErrors(t *testing.T) {
	sub := axisSubspace(t, 0.45)

	_, err := Scores(nil, sub)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "nil")

	_, err = Scores(mat.NewDense(1, 2, []float64{1, 2}), sub)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dimension mismatch")

	_, err = Scores(mat.NewDense(1, 3, []float64{1, 2, 3}), &pca.Subspace{})
	test.That(t, errors.Is(err, pca.ErrNotFitted), test.ShouldBeTrue)
}

func TestClassify(t *testing.T) {
	labels := Classify([]float64{-1, 0, 1}, 0)
	test.That(t, labels, test.ShouldResemble, []Label{LabelBad, LabelGood, LabelGood})

	labels = Classify(nil, 0)
	test.That(t, labels, test.ShouldHaveLength, 0)

	labels = Classify([]float64{-16, -9, -0.5}, -10)
	test.That(t, labels, test.ShouldResemble, []Label{LabelBad, LabelGood, LabelGood})
}
