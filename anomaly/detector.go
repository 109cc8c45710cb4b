package anomaly

import (
	"context"
	"io"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/backbone"
	"github.com/ashahba/transfer-learning/checkpoint"
	"github.com/ashahba/transfer-learning/dataset"
	"github.com/ashahba/transfer-learning/features"
	"github.com/ashahba/transfer-learning/ml/pca"
	"github.com/ashahba/transfer-learning/simsiam"
	"github.com/ashahba/transfer-learning/utils"
)

// DefaultPCAThreshold is the cumulative explained variance Train keeps by
// default.
const DefaultPCAThreshold = 0.99

// ReturnType picks what Predict hands back.
type ReturnType string

// The prediction outputs.
const (
	ReturnScores  ReturnType = "scores"
	ReturnClasses ReturnType = "class"
)

// Valid reports whether r names a supported prediction output.
func (r ReturnType) Valid() bool { return r == ReturnScores || r == ReturnClasses }

// Detector ties a backbone, a feature extractor and a principal subspace
// into the anomaly detection model: Train fits the subspace on normal
// samples, Evaluate turns held-out scores into a threshold, Predict scores
// new batches against the subspace.
type Detector struct {
	name      string
	model     backbone.Backbone
	extractor *features.Extractor
	layer     string
	pool      features.PoolKind
	kernel    int
	logger    golog.Logger
}

// NewDetector binds a detector to a backbone layer. Layer, pooling kind and
// kernel follow the same rules as features.NewExtractor.
func NewDetector(
	name string,
	b backbone.Backbone,
	layer string,
	pool features.PoolKind,
	kernel int,
	logger golog.Logger,
) (*Detector, error) {
	if name == "" {
		return nil, errors.New("model name cannot be empty")
	}
	extractor, err := features.NewExtractor(b, layer, pool, kernel, logger)
	if err != nil {
		return nil, err
	}
	return &Detector{
		name:      name,
		model:     b,
		extractor: extractor,
		layer:     layer,
		pool:      pool,
		kernel:    kernel,
		logger:    logger,
	}, nil
}

// Name returns the model name the detector was created with.
func (d *Detector) Name() string { return d.name }

// Layer returns the backbone layer features are extracted from.
func (d *Detector) Layer() string { return d.layer }

// TrainOptions configure Train.
type TrainOptions struct {
	// OutputDir receives checkpoints and is created if needed. Required.
	OutputDir string
	// PCAThreshold is the cumulative explained variance to keep, in (0, 1)
	// exclusive. Defaults to DefaultPCAThreshold.
	PCAThreshold float64
	// BatchSize defaults to 32.
	BatchSize int
	// Shuffle iterates the training samples in a seeded random order.
	Shuffle bool
	Seed    int64
	// Transform is applied per sample while extracting features.
	Transform dataset.Transform
	// SimSiam enables representation pretraining before the subspace fit.
	SimSiam *simsiam.Options
	// InitialCheckpoint loads weights into the backbone before anything
	// else runs.
	InitialCheckpoint string
}

// Train extracts features of the dataset's train subset, or of the whole
// dataset when no subsets are recorded, and fits the principal subspace the
// detector scores against. The fitted subspace is returned for the caller
// to pass to Evaluate and Predict.
func (d *Detector) Train(ctx context.Context, ds *dataset.Dataset, opts TrainOptions) (*pca.Subspace, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if opts.PCAThreshold == 0 {
		opts.PCAThreshold = DefaultPCAThreshold
	}
	if opts.PCAThreshold <= 0 || opts.PCAThreshold >= 1 {
		return nil, errors.Errorf("threshold should be a float between 0 and 1, got %v", opts.PCAThreshold)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 32
	}
	if opts.OutputDir == "" {
		return nil, errors.New("an output directory is required")
	}
	if err := utils.EnsureDirectory(opts.OutputDir); err != nil {
		return nil, err
	}

	if opts.InitialCheckpoint != "" {
		state, meta, err := checkpoint.Load(opts.InitialCheckpoint)
		if err != nil {
			return nil, err
		}
		if err := d.model.LoadStateDict(state, false); err != nil {
			return nil, errors.Wrapf(err, "loading the initial checkpoint %s", opts.InitialCheckpoint)
		}
		d.logger.Infow("loaded initial weights",
			"path", opts.InitialCheckpoint,
			"epoch", meta.Epoch,
			"arch", meta.Arch,
		)
	}

	if opts.SimSiam != nil {
		sopts := *opts.SimSiam
		if sopts.OutputDir == "" {
			sopts.OutputDir = opts.OutputDir
		}
		pretrained, err := simsiam.NewPretrainer(d.logger).Run(ctx, d.model, ds, sopts)
		if err != nil {
			return nil, errors.Wrap(err, "representation pretraining")
		}
		extractor, err := features.NewExtractor(pretrained, d.layer, d.pool, d.kernel, d.logger)
		if err != nil {
			return nil, err
		}
		d.model = pretrained
		d.extractor = extractor
	}

	loader, err := ds.NewSubsetLoaderOrWhole(dataset.SplitTrain, dataset.LoaderConfig{
		BatchSize: opts.BatchSize,
		Shuffle:   opts.Shuffle,
		Seed:      opts.Seed,
		Transform: opts.Transform,
	})
	if err != nil {
		return nil, err
	}

	var data []float64
	var rows, cols int
	for {
		batch, err := loader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		fm, err := d.extractor.Extract(ctx, batch.Inputs)
		if err != nil {
			return nil, err
		}
		r, c := fm.Dims()
		if cols == 0 {
			cols = c
			data = make([]float64, 0, loader.NumSamples()*c)
		}
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				data = append(data, fm.At(i, j))
			}
		}
		rows += r
	}

	sub, err := pca.Fit(mat.NewDense(rows, cols, data), opts.PCAThreshold)
	if err != nil {
		return nil, err
	}
	d.logger.Infow("anomaly detector trained",
		"model", d.name,
		"layer", d.layer,
		"samples", rows,
		"feature_dim", cols,
		"components", sub.NumComponents(),
		"pca_threshold", opts.PCAThreshold,
	)
	return sub, nil
}

// EvaluateOptions configure Evaluate.
type EvaluateOptions struct {
	// UseTestSet evaluates on the test subset instead of the validation
	// one. A missing test subset is an error rather than a fallback.
	UseTestSet bool
	// BatchSize defaults to 32.
	BatchSize int
	// Transform is applied per sample while extracting features.
	Transform dataset.Transform
}

// Evaluate scores held-out samples against the subspace, builds their ROC
// curve and returns the score threshold at the maximal Youden's J
// statistic. It reads the validation subset by default, the test subset
// when requested, and the whole dataset when no subsets are recorded.
func (d *Detector) Evaluate(
	ctx context.Context,
	ds *dataset.Dataset,
	sub *pca.Subspace,
	opts EvaluateOptions,
) (float64, error) {
	if ds == nil {
		return 0, errors.New("dataset is nil")
	}
	if sub == nil {
		return 0, errors.New("subspace is nil")
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
		return 0, err
	}

	var scores []float64
	var truth []int
	for {
		batch, err := loader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		fm, err := d.extractor.Extract(ctx, batch.Inputs)
		if err != nil {
			return 0, err
		}
		batchScores, err := Scores(fm, sub)
		if err != nil {
			return 0, err
		}
		scores = append(scores, batchScores...)
		truth = append(truth, batch.Labels...)
	}

	eval, err := EvaluateScores(scores, truth)
	if err != nil {
		return 0, err
	}
	mean, _ := stats.Mean(scores)
	stddev, _ := stats.StandardDeviation(scores)
	d.logger.Infow("anomaly evaluation complete",
		"model", d.name,
		"source", source,
		"samples", len(scores),
		"auc", eval.AUC,
		"threshold", eval.Threshold,
		"score_mean", mean,
		"score_stddev", stddev,
	)
	return eval.Threshold, nil
}

// PredictOptions configure Predict.
type PredictOptions struct {
	// ReturnType picks the prediction output. Defaults to ReturnScores.
	ReturnType ReturnType
	// Threshold is the score cutoff class calls use. Required with
	// ReturnClasses.
	Threshold *float64
}

// Prediction is the result of scoring one batch. Classes is only filled
// when ReturnClasses was requested.
type Prediction struct {
	Scores  []float64
	Classes []Label
}

// Predict scores one stacked batch against the subspace and, when
// requested, turns the scores into class calls.
func (d *Detector) Predict(
	ctx context.Context,
	batch *tensor.Dense,
	sub *pca.Subspace,
	opts PredictOptions,
) (Prediction, error) {
	if batch == nil {
		return Prediction{}, errors.New("input batch is nil")
	}
	if sub == nil {
		return Prediction{}, errors.New("subspace is nil")
	}
	rt := opts.ReturnType
	if rt == "" {
		rt = ReturnScores
	}
	if !rt.Valid() {
		return Prediction{}, errors.Errorf("unknown return type %q, expected %q or %q", rt, ReturnScores, ReturnClasses)
	}
	if rt == ReturnClasses && opts.Threshold == nil {
		return Prediction{}, errors.New("class prediction requires a numeric threshold")
	}

	fm, err := d.extractor.Extract(ctx, batch)
	if err != nil {
		return Prediction{}, err
	}
	scores, err := Scores(fm, sub)
	if err != nil {
		return Prediction{}, err
	}
	pred := Prediction{Scores: scores}
	if rt == ReturnClasses {
		pred.Classes = Classify(scores, *opts.Threshold)
	}
	d.logger.Debugw("anomaly prediction complete",
		"model", d.name,
		"samples", len(scores),
		"return_type", string(rt),
	)
	return pred, nil
}
