package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagCatalog = "catalog"
	generalFlagDebug   = "debug"

	datasetFlagDataset = "dataset"
	datasetFlagSplits  = "splits"

	modelFlagBackbone   = "backbone"
	modelFlagLayer      = "layer"
	modelFlagPooling    = "pooling"
	modelFlagKernelSize = "kernel-size"

	batchFlagBatchSize     = "batch-size"
	batchFlagNormalizeMean = "normalize-mean"
	batchFlagNormalizeStd  = "normalize-std"

	trainFlagPCAThreshold      = "pca-threshold"
	trainFlagShuffle           = "shuffle"
	trainFlagSeed              = "seed"
	trainFlagOutputDir         = "output-dir"
	trainFlagInitialCheckpoint = "initial-checkpoint"
	trainFlagUsePretraining    = "use-pretraining"
	trainFlagEpochs            = "epochs"

	evalFlagSubspace   = "subspace"
	evalFlagUseTestSet = "use-test-set"

	predictFlagReturnType = "return-type"
	predictFlagThreshold  = "threshold"
)

// modelFlags select the backbone and the feature extraction point. They are
// shared by every command that runs the feature extractor.
func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     modelFlagBackbone,
			Required: true,
			Usage:    "registered backbone to extract features with",
		},
		&cli.StringFlag{
			Name:     modelFlagLayer,
			Required: true,
			Usage:    "child layer whose activations become features",
		},
		&cli.StringFlag{
			Name:  modelFlagPooling,
			Value: "avg",
			Usage: "spatial pooling applied to the activations: either avg or max",
		},
		&cli.IntFlag{
			Name:     modelFlagKernelSize,
			Required: true,
			Usage:    "square pooling kernel size",
		},
	}
}

// batchFlags configure how samples are batched and normalized.
func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        batchFlagBatchSize,
			DefaultText: "32",
			Usage:       "samples per batch",
		},
		&cli.Float64Flag{
			Name:  batchFlagNormalizeMean,
			Usage: "subtract this mean from every input element",
		},
		&cli.Float64Flag{
			Name:  batchFlagNormalizeStd,
			Value: 1,
			Usage: "divide every input element by this standard deviation",
		},
	}
}

func datasetFlags(defaultSplits ...string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     datasetFlagDataset,
			Required: true,
			Usage:    "name of the cataloged dataset",
		},
		&cli.StringSliceFlag{
			Name:  datasetFlagSplits,
			Value: cli.NewStringSlice(defaultSplits...),
			Usage: "splits to load from the catalog",
		},
	}
}

// newApp is called per invocation: slice flag values live inside the flag
// structs, so a shared app would leak them between runs.
func newApp() *cli.App {
	return &cli.App{
		Name:            "tlt",
		Usage:           "run transfer learning workflows on cataloged datasets",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        generalFlagCatalog,
				Aliases:     []string{"c"},
				Usage:       "load the dataset catalog config from `FILE`",
				DefaultText: "$HOME/.tlt/catalog.json",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:            "datasets",
				Usage:           "work with cataloged datasets",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list the datasets the catalog serves",
						Action: DatasetsListAction,
					},
					{
						Name:      "show",
						Usage:     "describe one cataloged dataset",
						ArgsUsage: "<dataset>",
						Action:    DatasetsShowAction,
					},
				},
			},
			{
				Name:  "train",
				Usage: "fit an anomaly detection subspace on extracted features",
				Flags: join(datasetFlags("train", "validation"), modelFlags(), batchFlags(), []cli.Flag{
					&cli.Float64Flag{
						Name:        trainFlagPCAThreshold,
						DefaultText: "0.99",
						Usage:       "cumulative explained variance kept by the subspace",
					},
					&cli.BoolFlag{
						Name:  trainFlagShuffle,
						Usage: "iterate training samples in a seeded random order",
					},
					&cli.Int64Flag{
						Name:  trainFlagSeed,
						Usage: "seed for the shuffle order",
					},
					&cli.PathFlag{
						Name:     trainFlagOutputDir,
						Required: true,
						Usage:    "directory the fitted subspace and checkpoints are written to",
					},
					&cli.PathFlag{
						Name:      trainFlagInitialCheckpoint,
						TakesFile: true,
						Usage:     "checkpoint to load backbone weights from before training",
					},
					&cli.BoolFlag{
						Name:  trainFlagUsePretraining,
						Usage: "pretrain the backbone on unlabeled data before extracting features",
					},
					&cli.IntFlag{
						Name:        trainFlagEpochs,
						DefaultText: "1",
						Usage:       "pretraining epochs",
					},
				}),
				Action: TrainAction,
			},
			{
				Name:  "evaluate",
				Usage: "score a dataset against a fitted subspace and pick a cutoff",
				Flags: join(datasetFlags("train", "validation"), modelFlags(), batchFlags(), []cli.Flag{
					&cli.PathFlag{
						Name:      evalFlagSubspace,
						Required:  true,
						TakesFile: true,
						Usage:     "subspace file written by train",
					},
					&cli.BoolFlag{
						Name:  evalFlagUseTestSet,
						Usage: "evaluate on the test subset instead of the validation one",
					},
				}),
				Action: EvaluateAction,
			},
			{
				Name:  "predict",
				Usage: "score samples against a fitted subspace",
				Flags: join(datasetFlags("test"), modelFlags(), batchFlags(), []cli.Flag{
					&cli.PathFlag{
						Name:      evalFlagSubspace,
						Required:  true,
						TakesFile: true,
						Usage:     "subspace file written by train",
					},
					&cli.StringFlag{
						Name:  predictFlagReturnType,
						Value: "scores",
						Usage: "what to print per sample: either scores or class",
					},
					&cli.Float64Flag{
						Name:  predictFlagThreshold,
						Usage: "cutoff separating good from bad, required for class predictions",
					},
				}),
				Action: PredictAction,
			},
		},
	}
}

func join(flags ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, fs := range flags {
		out = append(out, fs...)
	}
	return out
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app := newApp()
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
