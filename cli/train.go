package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ashahba/transfer-learning/anomaly"
)

// TrainAction is the corresponding Action for 'train'. It extracts features
// from the training samples, fits the anomaly detection subspace and writes
// it to the output directory.
func TrainAction(cCtx *cli.Context) error {
	c, err := newTltClient(cCtx)
	if err != nil {
		return err
	}
	return c.trainAction(cCtx)
}

func (t *tltClient) trainAction(cCtx *cli.Context) error {
	if cCtx.Bool(trainFlagUsePretraining) {
		// the pretraining loop delegates its optimization step to a framework
		// stepper, which only a library caller can supply
		return errors.Errorf("%s needs an optimization stepper wired through the simsiam package "+
			"and cannot run from the command line", trainFlagUsePretraining)
	}

	ds, err := t.loadDataset(cCtx)
	if err != nil {
		return err
	}
	det, err := t.detector(cCtx)
	if err != nil {
		return err
	}

	sub, err := det.Train(cCtx.Context, ds, anomaly.TrainOptions{
		OutputDir:         cCtx.Path(trainFlagOutputDir),
		PCAThreshold:      cCtx.Float64(trainFlagPCAThreshold),
		BatchSize:         cCtx.Int(batchFlagBatchSize),
		Shuffle:           cCtx.Bool(trainFlagShuffle),
		Seed:              cCtx.Int64(trainFlagSeed),
		Transform:         transformFromFlags(cCtx),
		InitialCheckpoint: cCtx.Path(trainFlagInitialCheckpoint),
	})
	if err != nil {
		return errors.Wrap(err, "could not train the anomaly detector")
	}

	path := subspacePath(cCtx.Path(trainFlagOutputDir), det.Name())
	if err := sub.Save(path); err != nil {
		return err
	}
	printf(cCtx.App.Writer, "Trained %q on %q keeping %d of %d feature dimensions",
		det.Name(), ds.Name(), sub.NumComponents(), sub.Dim())
	printf(cCtx.App.Writer, "Subspace written to %s", path)
	return nil
}
