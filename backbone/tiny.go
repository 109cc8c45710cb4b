package backbone

import (
	"github.com/edaniels/golog"
)

func init() {
	Register("tinynet", NewTinyNet)
}

// NewTinyNet returns a small deterministic backbone useful for local testing
// and examples. Its children are named like the ones of a torchvision resnet
// so layer selection reads the same as against a real model.
func NewTinyNet(logger golog.Logger) (Backbone, error) {
	return NewSequential("tinynet",
		NewScale("conv1"),
		NewScale("layer1"),
		NewScale("layer2"),
		NewScale("layer3"),
		NewScale("layer4"),
		NewScale("avgpool"),
		NewChannelHead("fc"),
	)
}
