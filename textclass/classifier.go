// Package textclass fine-tunes binary text classifiers. The network math
// lives in a framework estimator the classifier drives; this package owns
// epoch scheduling, learning rate decay on validation plateaus and
// checkpointing.
package textclass

import (
	"context"
	"io"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/checkpoint"
	"github.com/ashahba/transfer-learning/dataset"
	"github.com/ashahba/transfer-learning/ml"
)

// ErrNotTrained is returned when a classifier is used before it was trained
// or loaded from a checkpoint.
var ErrNotTrained = errors.New("the model must be trained or loaded first")

// DefaultLearningRate is the fine tuning rate used when none is given.
const DefaultLearningRate = 3e-5

// Estimator is the framework adapter a classifier fine-tunes through. The
// classifier schedules epochs and batches; the estimator owns the network.
type Estimator interface {
	// FitBatch runs one optimization step and reports the batch loss and
	// accuracy.
	FitBatch(ctx context.Context, inputs *tensor.Dense, labels []int, lr float64) (loss, accuracy float64, err error)
	// EvaluateBatch scores one batch without updating weights.
	EvaluateBatch(ctx context.Context, inputs *tensor.Dense, labels []int) (loss, accuracy float64, err error)
	// Predict returns one logit per sample.
	Predict(ctx context.Context, inputs *tensor.Dense) ([]float64, error)
	// StateDict returns the live weights keyed "child.param".
	StateDict() ml.Tensors
	// LoadStateDict replaces weights by key with clones of the given
	// tensors.
	LoadStateDict(weights ml.Tensors, strict bool) error
}

// EpochStats collects one training epoch's averaged metrics.
type EpochStats struct {
	Epoch        int
	Loss         float64
	Accuracy     float64
	ValLoss      float64
	ValAccuracy  float64
	LearningRate float64
	// Validated says whether the Val fields were measured this epoch.
	Validated bool
}

// Classifier fine-tunes and serves a binary text classification estimator.
type Classifier struct {
	name      string
	estimator Estimator
	classes   []string
	trained   bool
	logger    golog.Logger
}

// NewClassifier wraps an estimator for fine tuning under the given model
// name.
func NewClassifier(name string, est Estimator, logger golog.Logger) (*Classifier, error) {
	if name == "" {
		return nil, errors.New("model name cannot be empty")
	}
	if est == nil {
		return nil, errors.New("estimator is nil")
	}
	return &Classifier{name: name, estimator: est, logger: logger}, nil
}

// Name returns the model name the classifier was created with.
func (c *Classifier) Name() string { return c.name }

// Trained reports whether the classifier can evaluate and predict.
func (c *Classifier) Trained() bool { return c.trained }

// ClassNames returns the class names picked up from the training dataset.
func (c *Classifier) ClassNames() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

// TrainOptions configure fine tuning.
type TrainOptions struct {
	// Epochs is the number of passes over the training data. Required.
	Epochs int
	// BatchSize defaults to 32.
	BatchSize int
	// LearningRate defaults to DefaultLearningRate.
	LearningRate float64
	// Shuffle iterates training samples in a seeded random order.
	Shuffle bool
	Seed    int64
	// OutputDir hosts the checkpoint directory. Required unless
	// DisableCheckpoints is set.
	OutputDir string
	// DisableCheckpoints skips per epoch checkpointing.
	DisableCheckpoints bool
	// DisableEval skips the per epoch validation pass even when the
	// dataset has a validation subset.
	DisableEval bool
	// DisableLRDecay keeps the learning rate fixed instead of decaying it
	// when the validation loss plateaus.
	DisableLRDecay bool
	// Transform is applied per sample while batching.
	Transform dataset.Transform
	// InitialCheckpoint loads estimator weights before training starts.
	InitialCheckpoint string
	// Clock is used for epoch timing. Defaults to the wall clock.
	Clock clock.Clock
}

// Train fine-tunes the estimator over the dataset's train subset, or the
// whole dataset when no subsets are recorded, and returns the per epoch
// history. Only binary datasets are supported: the dataset must carry
// exactly two class names.
func (c *Classifier) Train(ctx context.Context, ds *dataset.Dataset, opts TrainOptions) ([]EpochStats, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if opts.Epochs <= 0 {
		return nil, errors.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 32
	}
	if opts.LearningRate == 0 {
		opts.LearningRate = DefaultLearningRate
	}
	if opts.LearningRate < 0 {
		return nil, errors.Errorf("learning rate must be positive, got %v", opts.LearningRate)
	}
	if classes := ds.ClassNames(); len(classes) != 2 {
		return nil, errors.Errorf("binary classification requires exactly 2 classes, got %v", classes)
	}
	var store *checkpoint.Store
	if !opts.DisableCheckpoints {
		if opts.OutputDir == "" {
			return nil, errors.New("an output directory is required to keep checkpoints")
		}
		var err error
		store, err = checkpoint.NewStore(opts.OutputDir, c.name, c.logger)
		if err != nil {
			return nil, err
		}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	if opts.InitialCheckpoint != "" {
		state, meta, err := checkpoint.Load(opts.InitialCheckpoint)
		if err != nil {
			return nil, err
		}
		if err := c.estimator.LoadStateDict(state, false); err != nil {
			return nil, errors.Wrapf(err, "loading the initial checkpoint %s", opts.InitialCheckpoint)
		}
		c.logger.Infow("loaded initial weights", "path", opts.InitialCheckpoint, "epoch", meta.Epoch)
	}

	runID := uuid.NewString()
	sched := newPlateauScheduler(opts.LearningRate)
	history := make([]EpochStats, 0, opts.Epochs)
	bestLoss := math.Inf(1)
	c.logger.Infow("fine tuning started",
		"model", c.name,
		"run_id", runID,
		"epochs", opts.Epochs,
		"batch_size", opts.BatchSize,
		"lr", opts.LearningRate,
	)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		start := clk.Now()
		lr := sched.LR()
		loader, err := ds.NewSubsetLoaderOrWhole(dataset.SplitTrain, dataset.LoaderConfig{
			BatchSize: opts.BatchSize,
			Shuffle:   opts.Shuffle,
			Seed:      opts.Seed + int64(epoch),
			Transform: opts.Transform,
		})
		if err != nil {
			return nil, err
		}
		epochStats := EpochStats{Epoch: epoch, LearningRate: lr}
		epochStats.Loss, epochStats.Accuracy, err = c.runEpoch(ctx, loader, lr, true)
		if err != nil {
			return nil, errors.Wrapf(err, "fine tuning epoch %d", epoch)
		}

		if !opts.DisableEval {
			valLoader, err := ds.NewSubsetLoader(dataset.SplitValidation, dataset.LoaderConfig{
				BatchSize: opts.BatchSize,
				Transform: opts.Transform,
			})
			switch {
			case err == nil:
				epochStats.ValLoss, epochStats.ValAccuracy, err = c.runEpoch(ctx, valLoader, 0, false)
				if err != nil {
					return nil, errors.Wrapf(err, "validating epoch %d", epoch)
				}
				epochStats.Validated = true
				if !opts.DisableLRDecay {
					sched.Observe(epochStats.ValLoss)
				}
			case errors.Is(err, dataset.ErrSubsetNotFound):
				// nothing to validate on
			default:
				return nil, err
			}
		}

		monitored := epochStats.Loss
		if epochStats.Validated {
			monitored = epochStats.ValLoss
		}
		isBest := monitored < bestLoss
		if isBest {
			bestLoss = monitored
		}
		if store != nil {
			if _, err := store.Save(c.estimator.StateDict(), checkpoint.Metadata{
				Epoch:   epoch,
				Arch:    c.name,
				Loss:    monitored,
				RunID:   runID,
				SavedAt: clk.Now(),
			}, isBest); err != nil {
				return nil, err
			}
		}
		history = append(history, epochStats)
		c.logger.Infow("fine tuning epoch complete",
			"epoch", epoch,
			"loss", epochStats.Loss,
			"accuracy", epochStats.Accuracy,
			"val_loss", epochStats.ValLoss,
			"val_accuracy", epochStats.ValAccuracy,
			"validated", epochStats.Validated,
			"lr", lr,
			"took", clk.Since(start),
		)
	}

	c.classes = ds.ClassNames()
	c.trained = true
	return history, nil
}

// EvaluateOptions configure Evaluate.
type EvaluateOptions struct {
	// UseTestSet evaluates on the test subset instead of the validation
	// one. A missing test subset is an error rather than a fallback.
	UseTestSet bool
	// BatchSize defaults to 32.
	BatchSize int
	// Transform is applied per sample while batching.
	Transform dataset.Transform
}

// Evaluate scores the classifier and returns the averaged loss and
// accuracy. It reads the validation subset by default, the test subset when
// requested, and the whole dataset when no subsets are recorded.
func (c *Classifier) Evaluate(ctx context.Context, ds *dataset.Dataset, opts EvaluateOptions) (float64, float64, error) {
	if !c.trained {
		return 0, 0, ErrNotTrained
	}
	if ds == nil {
		return 0, 0, errors.New("dataset is nil")
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 32
	}
	cfg := dataset.LoaderConfig{BatchSize: opts.BatchSize, Transform: opts.Transform}

	var loader *dataset.Loader
	var err error
	source := string(dataset.SplitValidation)
	if opts.UseTestSet {
		source = string(dataset.SplitTest)
		loader, err = ds.NewSubsetLoader(dataset.SplitTest, cfg)
	} else {
		loader, err = ds.NewSubsetLoader(dataset.SplitValidation, cfg)
		if errors.Is(err, dataset.ErrSubsetNotFound) {
			source = "all"
			loader, err = ds.NewLoader(cfg)
		}
	}
	if err != nil {
		return 0, 0, err
	}

	loss, accuracy, err := c.runEpoch(ctx, loader, 0, false)
	if err != nil {
		return 0, 0, err
	}
	c.logger.Infow("evaluation complete",
		"model", c.name,
		"source", source,
		"samples", loader.NumSamples(),
		"loss", loss,
		"accuracy", accuracy,
	)
	return loss, accuracy, nil
}

// Predict squashes the estimator's logits through a sigmoid, one score per
// sample in the batch.
func (c *Classifier) Predict(ctx context.Context, inputs *tensor.Dense) ([]float64, error) {
	if !c.trained {
		return nil, ErrNotTrained
	}
	if inputs == nil {
		return nil, errors.New("input batch is nil")
	}
	logits, err := c.estimator.Predict(ctx, inputs)
	if err != nil {
		return nil, err
	}
	scores, err := stats.Sigmoid(logits)
	if err != nil {
		return nil, errors.Wrap(err, "squashing logits")
	}
	return scores, nil
}

// PredictClasses rounds the sigmoid scores into class indices.
func (c *Classifier) PredictClasses(ctx context.Context, inputs *tensor.Dense) ([]int, error) {
	scores, err := c.Predict(ctx, inputs)
	if err != nil {
		return nil, err
	}
	classes := make([]int, len(scores))
	for i, s := range scores {
		if s >= 0.5 {
			classes[i] = 1
		}
	}
	return classes, nil
}

// LoadCheckpoint restores estimator weights from a checkpoint written by a
// previous run and marks the classifier ready.
func (c *Classifier) LoadCheckpoint(path string) error {
	state, meta, err := checkpoint.Load(path)
	if err != nil {
		return err
	}
	if err := c.estimator.LoadStateDict(state, false); err != nil {
		return errors.Wrapf(err, "restoring checkpoint %s", path)
	}
	c.trained = true
	c.logger.Infow("restored weights", "path", path, "epoch", meta.Epoch, "loss", meta.Loss)
	return nil
}

// runEpoch drives one pass over the loader, fitting when fit is set and
// only scoring otherwise, and returns the sample weighted loss and
// accuracy.
func (c *Classifier) runEpoch(ctx context.Context, loader *dataset.Loader, lr float64, fit bool) (float64, float64, error) {
	var lossSum, accSum float64
	var seen int
	for {
		batch, err := loader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, err
		}
		var loss, accuracy float64
		if fit {
			loss, accuracy, err = c.estimator.FitBatch(ctx, batch.Inputs, batch.Labels, lr)
		} else {
			loss, accuracy, err = c.estimator.EvaluateBatch(ctx, batch.Inputs, batch.Labels)
		}
		if err != nil {
			return 0, 0, err
		}
		n := batch.Inputs.Shape()[0]
		lossSum += loss * float64(n)
		accSum += accuracy * float64(n)
		seen += n
	}
	return lossSum / float64(seen), accSum / float64(seen), nil
}
