package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"gorgonia.org/tensor"

	"github.com/ashahba/transfer-learning/ml"
)

func stateOf(vals ...float64) ml.Tensors {
	return ml.Tensors{
		"conv1.weight": tensor.New(tensor.WithShape(len(vals)), tensor.WithBacking(vals)),
	}
}

func TestStoreSaveLoad(t *testing.T) {
	logger := golog.NewTestLogger(t)
	out := t.TempDir()
	store, err := NewStore(out, "tinynet", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, store.Dir(), test.ShouldEqual, filepath.Join(out, "tinynet_checkpoints"))

	path, err := store.Save(stateOf(1, 2, 3), Metadata{Epoch: 1, Loss: 5}, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, path, test.ShouldEqual, store.EpochPath(1))

	for _, p := range []string{
		store.EpochPath(1),
		filepath.Join(store.Dir(), "checkpoint_0001.json"),
		store.BestPath(),
		filepath.Join(store.Dir(), "checkpoint_best.json"),
	} {
		_, err := os.Stat(p)
		test.That(t, err, test.ShouldBeNil)
	}

	state, meta, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meta.Epoch, test.ShouldEqual, 1)
	test.That(t, meta.Loss, test.ShouldEqual, 5.0)
	test.That(t, meta.Arch, test.ShouldEqual, "tinynet")
	test.That(t, meta.RunID, test.ShouldNotEqual, "")
	test.That(t, meta.SavedAt.IsZero(), test.ShouldBeFalse)
	test.That(t, state, test.ShouldHaveLength, 1)
	test.That(t, state["conv1.weight"].Data(), test.ShouldResemble, []float64{1, 2, 3})
	test.That(t, state["conv1.weight"].Shape().Eq(tensor.Shape{3}), test.ShouldBeTrue)

	sidecar, err := os.ReadFile(filepath.Join(store.Dir(), "checkpoint_0001.json"))
	test.That(t, err, test.ShouldBeNil)
	var fromJSON Metadata
	test.That(t, json.Unmarshal(sidecar, &fromJSON), test.ShouldBeNil)
	test.That(t, fromJSON.Epoch, test.ShouldEqual, 1)
	test.That(t, fromJSON.RunID, test.ShouldEqual, meta.RunID)
}

func TestStoreKeepsExplicitMetadata(t *testing.T) {
	logger := golog.NewTestLogger(t)
	store, err := NewStore(t.TempDir(), "tinynet", logger)
	test.That(t, err, test.ShouldBeNil)

	path, err := store.Save(stateOf(1), Metadata{Epoch: 7, Arch: "resnet50", RunID: "run-42"}, false)
	test.That(t, err, test.ShouldBeNil)
	_, meta, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meta.Arch, test.ShouldEqual, "resnet50")
	test.That(t, meta.RunID, test.ShouldEqual, "run-42")
}

func TestStoreBestCopy(t *testing.T) {
	logger := golog.NewTestLogger(t)
	store, err := NewStore(t.TempDir(), "tinynet", logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = store.Save(stateOf(1), Metadata{Epoch: 1, Loss: 5}, true)
	test.That(t, err, test.ShouldBeNil)
	_, err = store.Save(stateOf(2), Metadata{Epoch: 2, Loss: 9}, false)
	test.That(t, err, test.ShouldBeNil)

	_, meta, err := store.LoadBest()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meta.Epoch, test.ShouldEqual, 1)
	test.That(t, meta.Loss, test.ShouldEqual, 5.0)

	latest, err := store.Latest()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, latest, test.ShouldEqual, store.EpochPath(2))

	_, err = store.Save(stateOf(3), Metadata{Epoch: 3, Loss: 2}, true)
	test.That(t, err, test.ShouldBeNil)
	state, meta, err := store.LoadBest()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meta.Epoch, test.ShouldEqual, 3)
	test.That(t, state["conv1.weight"].Data(), test.ShouldResemble, []float64{3})
}

func TestStoreSafeModelName(t *testing.T) {
	logger := golog.NewTestLogger(t)
	out := t.TempDir()
	store, err := NewStore(out, "facebook/simsiam", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, store.Dir(), test.ShouldEqual, filepath.Join(out, "facebook_simsiam_checkpoints"))
}

func TestStoreErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)

	_, err := NewStore(t.TempDir(), "", logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "model name")

	store, err := NewStore(t.TempDir(), "tinynet", logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = store.Save(nil, Metadata{Epoch: 1}, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no weights")

	_, err = store.Save(stateOf(1), Metadata{Epoch: -1}, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot be negative")

	_, err = store.Latest()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no checkpoints")

	_, _, err = Load(filepath.Join(store.Dir(), "nope.bin"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read checkpoint")

	_, _, err = store.LoadBest()
	test.That(t, err, test.ShouldNotBeNil)
}
