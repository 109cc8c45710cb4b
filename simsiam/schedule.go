package simsiam

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultBaseLR is the base learning rate pretraining starts from before
// batch size scaling.
const DefaultBaseLR = 0.171842137353148

// InitLR scales the base learning rate linearly with the batch size.
func InitLR(baseLR float64, batchSize int) float64 {
	return baseLR * float64(batchSize) / 256
}

// CosineLR returns the half cosine decay of the initial learning rate at
// the given epoch.
func CosineLR(initLR float64, epoch, totalEpochs int) float64 {
	return initLR * 0.5 * (1 + math.Cos(math.Pi*float64(epoch)/float64(totalEpochs)))
}

// NegativeCosineSimilarity is the siamese pretraining criterion between a
// predicted view and its stop gradient target. Lower is better; -1 means
// the views align perfectly.
func NegativeCosineSimilarity(p, z []float64) float64 {
	const eps = 1e-8
	np := math.Max(floats.Norm(p, 2), eps)
	nz := math.Max(floats.Norm(z, 2), eps)
	return -floats.Dot(p, z) / (np * nz)
}
