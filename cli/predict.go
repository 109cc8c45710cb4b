package cli

import (
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ashahba/transfer-learning/anomaly"
	"github.com/ashahba/transfer-learning/dataset"
	"github.com/ashahba/transfer-learning/ml/pca"
)

// PredictAction is the corresponding Action for 'predict'. It scores every
// loaded sample against a fitted subspace and prints one score, or one class,
// per line.
func PredictAction(cCtx *cli.Context) error {
	c, err := newTltClient(cCtx)
	if err != nil {
		return err
	}
	return c.predictAction(cCtx)
}

func (t *tltClient) predictAction(cCtx *cli.Context) error {
	ds, err := t.loadDataset(cCtx)
	if err != nil {
		return err
	}
	det, err := t.detector(cCtx)
	if err != nil {
		return err
	}
	sub, err := pca.Load(cCtx.Path(evalFlagSubspace))
	if err != nil {
		return err
	}

	opts := anomaly.PredictOptions{
		ReturnType: anomaly.ReturnType(cCtx.String(predictFlagReturnType)),
	}
	if cCtx.IsSet(predictFlagThreshold) {
		threshold := cCtx.Float64(predictFlagThreshold)
		opts.Threshold = &threshold
	}

	batchSize := cCtx.Int(batchFlagBatchSize)
	if batchSize == 0 {
		batchSize = 32
	}
	loader, err := ds.NewLoader(dataset.LoaderConfig{
		BatchSize: batchSize,
		Transform: transformFromFlags(cCtx),
	})
	if err != nil {
		return err
	}

	sample := 0
	for {
		batch, err := loader.Next(cCtx.Context)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		pred, err := det.Predict(cCtx.Context, batch.Inputs, sub, opts)
		if err != nil {
			return errors.Wrap(err, "could not score the batch")
		}
		for i := range pred.Scores {
			if opts.ReturnType == anomaly.ReturnClasses {
				printf(cCtx.App.Writer, "%d\t%s", sample, pred.Classes[i])
			} else {
				printf(cCtx.App.Writer, "%d\t%v", sample, pred.Scores[i])
			}
			sample++
		}
	}
	printf(cCtx.App.Writer, "Scored %d samples from %q", sample, ds.Name())
	return nil
}
