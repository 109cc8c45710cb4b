package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ashahba/transfer-learning/anomaly"
	"github.com/ashahba/transfer-learning/ml/pca"
)

// EvaluateAction is the corresponding Action for 'evaluate'. It scores a
// dataset against a fitted subspace and prints the cutoff separating good
// samples from bad ones.
func EvaluateAction(cCtx *cli.Context) error {
	c, err := newTltClient(cCtx)
	if err != nil {
		return err
	}
	return c.evaluateAction(cCtx)
}

func (t *tltClient) evaluateAction(cCtx *cli.Context) error {
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

	threshold, err := det.Evaluate(cCtx.Context, ds, sub, anomaly.EvaluateOptions{
		UseTestSet: cCtx.Bool(evalFlagUseTestSet),
		BatchSize:  cCtx.Int(batchFlagBatchSize),
		Transform:  transformFromFlags(cCtx),
	})
	if err != nil {
		return errors.Wrap(err, "could not evaluate the anomaly detector")
	}
	printf(cCtx.App.Writer, "Optimal cutoff for %q on %q: %v", det.Name(), ds.Name(), threshold)
	return nil
}
