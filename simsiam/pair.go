// Package simsiam pretrains a backbone's representation with a siamese
// encoder and predictor pair before the backbone is handed to feature
// extraction. Gradient and optimizer mechanics belong to the embedding
// framework; this package owns the pairing, the learning rate schedule and
// the checkpoint bookkeeping around it.
package simsiam

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/backbone"
	"github.com/ashahba/transfer-learning/ml"
)

// Pair couples an encoder backbone with a two layer MLP predictor. It
// implements backbone.Backbone so the wrapped phase can be checkpointed and
// forwarded like any other model; feature extraction sees through it to the
// encoder.
type Pair struct {
	encoder   backbone.Backbone
	predictor *backbone.Sequential
}

// NewPair wraps the encoder. featureDim is the encoder output width; the
// predictor maps it back onto itself through a predictorDim bottleneck.
func NewPair(encoder backbone.Backbone, featureDim, predictorDim int, seed int64) (*Pair, error) {
	if encoder == nil {
		return nil, errors.New("encoder backbone is nil")
	}
	if featureDim <= 0 {
		return nil, errors.Errorf("feature dimension must be positive, got %d", featureDim)
	}
	if predictorDim <= 0 {
		return nil, errors.Errorf("predictor dimension must be positive, got %d", predictorDim)
	}
	predictor, err := backbone.NewSequential("predictor",
		backbone.NewLinear("fc1", featureDim, predictorDim, seed),
		backbone.NewLinear("fc2", predictorDim, featureDim, seed+1),
	)
	if err != nil {
		return nil, err
	}
	return &Pair{encoder: encoder, predictor: predictor}, nil
}

// Encoder returns the wrapped backbone.
func (p *Pair) Encoder() backbone.Backbone { return p.encoder }

// Predictor returns the projection head.
func (p *Pair) Predictor() *backbone.Sequential { return p.predictor }

// Name identifies the wrapped architecture.
func (p *Pair) Name() string { return "simsiam_" + p.encoder.Name() }

// Children returns the encoder's children. The predictor is not a feature
// extraction target.
func (p *Pair) Children() []string { return p.encoder.Children() }

// Forward delegates to the encoder.
func (p *Pair) Forward(ctx context.Context, input *tensor.Dense, upto string) (*tensor.Dense, error) {
	return p.encoder.Forward(ctx, input, upto)
}

// Project runs the predictor over an encoder output, giving the predicted
// view of the siamese criterion.
func (p *Pair) Project(ctx context.Context, z *tensor.Dense) (*tensor.Dense, error) {
	return p.predictor.Output(ctx, z)
}

// StateDict merges both halves under "encoder." and "predictor." prefixes.
// The tensors are the live parameters.
func (p *Pair) StateDict() ml.Tensors {
	out := ml.Tensors{}
	for name, param := range p.encoder.StateDict() {
		out["encoder."+name] = param
	}
	for name, param := range p.predictor.StateDict() {
		out["predictor."+name] = param
	}
	return out
}

// LoadStateDict splits the weights by prefix and loads each half.
func (p *Pair) LoadStateDict(weights ml.Tensors, strict bool) error {
	enc := ml.Tensors{}
	pred := ml.Tensors{}
	for name, param := range weights {
		prefix, rest, found := strings.Cut(name, ".")
		if !found {
			if strict {
				return errors.Errorf("unexpected parameter %q", name)
			}
			continue
		}
		switch prefix {
		case "encoder":
			enc[rest] = param
		case "predictor":
			pred[rest] = param
		default:
			if strict {
				return errors.Errorf("unexpected parameter %q", name)
			}
		}
	}
	if err := p.encoder.LoadStateDict(enc, strict); err != nil {
		return errors.Wrap(err, "encoder")
	}
	return errors.Wrap(p.predictor.LoadStateDict(pred, strict), "predictor")
}

// UnwrapEncoderState keeps the encoder weights of a pair state dict,
// dropping the predictor and the encoder's classification head, and strips
// the prefix so a plain backbone can load the result.
func UnwrapEncoderState(state ml.Tensors) ml.Tensors {
	out := ml.Tensors{}
	for name, param := range state {
		if !strings.HasPrefix(name, "encoder.") || strings.HasPrefix(name, "encoder.fc") {
			continue
		}
		out[strings.TrimPrefix(name, "encoder.")] = param
	}
	return out
}
