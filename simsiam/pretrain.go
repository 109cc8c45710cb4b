package simsiam

import (
	"context"
	"io"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/backbone"
	"github.com/ashahba/transfer-learning/checkpoint"
	"github.com/ashahba/transfer-learning/dataset"
)

// State tracks where a pretrainer is in its lifecycle.
type State string

// The pretraining lifecycle. A failed run falls back to disabled.
const (
	StateDisabled    State = "disabled"
	StatePretraining State = "pretraining"
	StatePretrained  State = "pretrained"
)

// Rates carries the per group learning rates of one optimization step. The
// encoder rate follows the cosine schedule while the predictor rate stays
// pinned at the initial value.
type Rates struct {
	Encoder   float64
	Predictor float64
}

// Stepper performs one optimization step on the pair and returns the batch
// loss. The pretrainer only schedules calls; how gradients flow is the
// embedding framework's business.
type Stepper interface {
	Step(ctx context.Context, pair *Pair, view1, view2 *tensor.Dense, rates Rates) (float64, error)
}

// Augment produces one augmented view of a batch without modifying the
// given tensor.
type Augment func(*tensor.Dense) (*tensor.Dense, error)

// Options configure a pretraining run.
type Options struct {
	// Epochs is the number of passes over the data. Required.
	Epochs int
	// FeatureDim is the encoder output width. Required.
	FeatureDim int
	// PredictorDim is the bottleneck width of the predictor MLP. Defaults
	// to a quarter of FeatureDim.
	PredictorDim int
	// BatchSize defaults to 64.
	BatchSize int
	// BaseLR defaults to DefaultBaseLR.
	BaseLR float64
	// Seed drives shuffling and predictor initialization.
	Seed int64
	// OutputDir hosts the checkpoint directory. Required unless
	// DisableCheckpoints is set.
	OutputDir string
	// DisableCheckpoints skips checkpointing. The backbone then keeps the
	// final epoch's weights instead of the best epoch's.
	DisableCheckpoints bool
	// Stepper is the framework's optimization step. Required.
	Stepper Stepper
	// Augment produces each of the two views per batch. Identity when
	// unset.
	Augment Augment
	// Clock is used for epoch timing. Defaults to the wall clock.
	Clock clock.Clock
}

// Pretrainer runs siamese representation pretraining over a backbone.
type Pretrainer struct {
	state  State
	logger golog.Logger
}

// NewPretrainer returns a pretrainer in the disabled state.
func NewPretrainer(logger golog.Logger) *Pretrainer {
	return &Pretrainer{state: StateDisabled, logger: logger}
}

// State reports the lifecycle state.
func (p *Pretrainer) State() State { return p.state }

// Run pretrains the backbone's representation on the dataset's train subset,
// or the whole dataset when no subsets are recorded, and returns the
// backbone carrying the best epoch's encoder weights.
func (p *Pretrainer) Run(
	ctx context.Context,
	b backbone.Backbone,
	ds *dataset.Dataset,
	opts Options,
) (backbone.Backbone, error) {
	if b == nil {
		return nil, errors.New("backbone is nil")
	}
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if opts.Epochs <= 0 {
		return nil, errors.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.Stepper == nil {
		return nil, errors.New("an optimization stepper is required")
	}
	if opts.FeatureDim <= 0 {
		return nil, errors.Errorf("feature dimension must be positive, got %d", opts.FeatureDim)
	}
	if opts.PredictorDim == 0 {
		opts.PredictorDim = opts.FeatureDim / 4
		if opts.PredictorDim == 0 {
			opts.PredictorDim = 1
		}
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 64
	}
	if opts.BaseLR == 0 {
		opts.BaseLR = DefaultBaseLR
	}
	if opts.BaseLR < 0 {
		return nil, errors.Errorf("base learning rate must be positive, got %v", opts.BaseLR)
	}
	if opts.OutputDir == "" && !opts.DisableCheckpoints {
		return nil, errors.New("an output directory is required to keep checkpoints")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	augment := opts.Augment
	if augment == nil {
		augment = func(batch *tensor.Dense) (*tensor.Dense, error) { return batch, nil }
	}

	pair, err := NewPair(b, opts.FeatureDim, opts.PredictorDim, opts.Seed)
	if err != nil {
		return nil, err
	}
	var store *checkpoint.Store
	if !opts.DisableCheckpoints {
		store, err = checkpoint.NewStore(opts.OutputDir, pair.Name(), p.logger)
		if err != nil {
			return nil, err
		}
	}

	initLR := InitLR(opts.BaseLR, opts.BatchSize)
	runID := uuid.NewString()
	p.state = StatePretraining
	succeeded := false
	defer func() {
		if !succeeded {
			p.state = StateDisabled
		}
	}()
	p.logger.Infow("representation pretraining started",
		"model", pair.Name(),
		"run_id", runID,
		"epochs", opts.Epochs,
		"batch_size", opts.BatchSize,
		"init_lr", initLR,
	)

	bestLoss := math.Inf(1)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		epochStart := clk.Now()
		rates := Rates{Encoder: CosineLR(initLR, epoch, opts.Epochs), Predictor: initLR}

		// a fresh loader per epoch reshuffles deterministically
		loader, err := ds.NewSubsetLoaderOrWhole(dataset.SplitTrain, dataset.LoaderConfig{
			BatchSize: opts.BatchSize,
			Shuffle:   true,
			Seed:      opts.Seed + int64(epoch),
		})
		if err != nil {
			return nil, err
		}

		var lossSum float64
		var seen int
		for {
			batch, err := loader.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			view1, err := augment(batch.Inputs)
			if err != nil {
				return nil, errors.Wrapf(err, "augmenting epoch %d", epoch)
			}
			view2, err := augment(batch.Inputs)
			if err != nil {
				return nil, errors.Wrapf(err, "augmenting epoch %d", epoch)
			}
			loss, err := opts.Stepper.Step(ctx, pair, view1, view2, rates)
			if err != nil {
				return nil, errors.Wrapf(err, "pretraining epoch %d", epoch)
			}
			n := batch.Inputs.Shape()[0]
			lossSum += loss * float64(n)
			seen += n
		}
		epochLoss := lossSum / float64(seen)
		isBest := epochLoss < bestLoss
		if isBest {
			bestLoss = epochLoss
		}
		if store != nil {
			if _, err := store.Save(pair.StateDict(), checkpoint.Metadata{
				Epoch:   epoch,
				Arch:    pair.Name(),
				Loss:    epochLoss,
				RunID:   runID,
				SavedAt: clk.Now(),
			}, isBest); err != nil {
				return nil, err
			}
		}
		p.logger.Infow("pretraining epoch complete",
			"epoch", epoch,
			"loss", epochLoss,
			"best_loss", bestLoss,
			"encoder_lr", rates.Encoder,
			"took", clk.Since(epochStart),
		)
	}

	if store != nil {
		state, meta, err := store.LoadBest()
		if err != nil {
			return nil, errors.Wrap(err, "reloading the best pretraining checkpoint")
		}
		if err := b.LoadStateDict(UnwrapEncoderState(state), false); err != nil {
			return nil, errors.Wrap(err, "restoring the best encoder weights")
		}
		p.logger.Infow("restored the best pretrained encoder", "epoch", meta.Epoch, "loss", meta.Loss)
	} else {
		p.logger.Debugw("checkpoints disabled, keeping the final epoch weights")
	}
	succeeded = true
	p.state = StatePretrained
	return b, nil
}
