package anomaly

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Evaluation summarizes a scored evaluation pass.
type Evaluation struct {
	// Threshold is the score cutoff maximizing Youden's J statistic
	// (TPR - FPR) on the ROC curve.
	Threshold float64
	// AUC is the area under the ROC curve.
	AUC float64
}

// EvaluateScores builds a ROC curve of the scores against binary ground
// truth, 1 marking good samples, and returns the threshold at the maximal
// Youden's J statistic together with the area under the curve.
func EvaluateScores(scores []float64, truth []int) (Evaluation, error) {
	if len(scores) == 0 {
		return Evaluation{}, errors.New("no scores to evaluate")
	}
	if len(scores) != len(truth) {
		return Evaluation{}, errors.Errorf("got %d scores but %d ground truth labels", len(scores), len(truth))
	}
	pos, neg := 0, 0
	for _, label := range truth {
		switch label {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return Evaluation{}, errors.Errorf("ground truth labels must be 0 or 1, got %d", label)
		}
	}
	if pos == 0 || neg == 0 {
		return Evaluation{}, errors.New("ground truth must contain both classes")
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return scores[order[i]] < scores[order[j]] })
	y := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	for k, i := range order {
		y[k] = scores[i]
		classes[k] = truth[i] == 1
	}

	tpr, fpr, thresh := stat.ROC(nil, y, classes, nil)

	best := 0
	bestJ := math.Inf(-1)
	for i := range tpr {
		if j := tpr[i] - fpr[i]; j > bestJ {
			bestJ = j
			best = i
		}
	}

	// the curve comes out with decreasing rates; trapezoidal integration
	// needs the abscissa increasing
	fprAsc := make([]float64, len(fpr))
	tprAsc := make([]float64, len(tpr))
	for i := range fpr {
		fprAsc[len(fpr)-1-i] = fpr[i]
		tprAsc[len(tpr)-1-i] = tpr[i]
	}
	auc := integrate.Trapezoidal(fprAsc, tprAsc)

	return Evaluation{Threshold: thresh[best], AUC: auc}, nil
}
