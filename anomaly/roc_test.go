package anomaly

import (
	"testing"

	"go.viam.com/test"
)

func TestEvaluateScores(t *testing.T) {
	t.Run("mixed", func(t *testing.T) {
		eval, err := EvaluateScores([]float64{0.1, 0.9, -0.2}, []int{0, 1, 1})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, eval.Threshold, test.ShouldAlmostEqual, 0.9, 1e-12)
		test.That(t, eval.AUC, test.ShouldAlmostEqual, 0.5, 1e-12)

		// only the lowest scored good sample lands on the wrong side
		labels := Classify([]float64{0.1, 0.9, -0.2}, eval.Threshold)
		test.That(t, labels, test.ShouldResemble, []Label{LabelBad, LabelGood, LabelBad})
	})

	t.Run("perfect separation", func(t *testing.T) {
		eval, err := EvaluateScores([]float64{-5, -4, 2, 3}, []int{0, 0, 1, 1})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, eval.Threshold, test.ShouldAlmostEqual, 2, 1e-12)
		test.That(t, eval.AUC, test.ShouldAlmostEqual, 1, 1e-12)

		labels := Classify([]float64{-5, -4, 2, 3}, eval.Threshold)
		test.That(t, labels, test.ShouldResemble, []Label{LabelBad, LabelBad, LabelGood, LabelGood})
	})

	t.Run("order independent", func(t *testing.T) {
		eval, err := EvaluateScores([]float64{3, -5, 2, -4}, []int{1, 0, 1, 0})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, eval.Threshold, test.ShouldAlmostEqual, 2, 1e-12)
		test.That(t, eval.AUC, test.ShouldAlmostEqual, 1, 1e-12)
	})

	t.Run("inverted scores", func(t *testing.T) {
		eval, err := EvaluateScores([]float64{2, 3, -4, -5}, []int{0, 0, 1, 1})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, eval.AUC, test.ShouldAlmostEqual, 0, 1e-12)
	})
}

func TestEvaluateScoresErrors(t *testing.T) {
	_, err := EvaluateScores(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no scores")

	_, err = EvaluateScores([]float64{1, 2}, []int{1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "2 scores but 1")

	_, err = EvaluateScores([]float64{1, 2}, []int{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "must be 0 or 1")

	_, err = EvaluateScores([]float64{1, 2}, []int{1, 1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "both classes")
}
