package dataset

import (
	"context"
	"io"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gorgonia.org/tensor"
)

func loaderDataset(t *testing.T, n int) *Dataset {
	t.Helper()
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{
			Input: tensor.New(tensor.WithShape(2),
				tensor.WithBacking([]float64{float64(i), float64(10 * i)})),
			Label: i,
		}
	}
	cat := &fakeCatalog{
		entries: map[string]CatalogEntry{"seq": {Name: "seq"}},
		splits:  map[string]map[Split][]Sample{"seq": {SplitTrain: samples}},
	}
	ds, err := FromCatalog(context.Background(), cat, "seq", []Split{SplitTrain}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return ds
}

func TestLoaderBatches(t *testing.T) {
	ds := loaderDataset(t, 5)
	loader, err := ds.NewLoader(LoaderConfig{BatchSize: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.NumSamples(), test.ShouldEqual, 5)
	test.That(t, loader.NumBatches(), test.ShouldEqual, 3)

	ctx := context.Background()

	batch, err := loader.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, batch.Inputs.Shape(), test.ShouldResemble, tensor.Shape{2, 2})
	test.That(t, batch.Inputs.Data(), test.ShouldResemble, []float64{0, 0, 1, 10})
	test.That(t, batch.Labels, test.ShouldResemble, []int{0, 1})

	batch, err = loader.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, batch.Labels, test.ShouldResemble, []int{2, 3})

	batch, err = loader.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, batch.Inputs.Shape(), test.ShouldResemble, tensor.Shape{1, 2})
	test.That(t, batch.Labels, test.ShouldResemble, []int{4})

	_, err = loader.Next(ctx)
	test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)

	loader.Reset()
	batch, err = loader.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, batch.Labels, test.ShouldResemble, []int{0, 1})
}

func TestLoaderShuffleDeterminism(t *testing.T) {
	ds := loaderDataset(t, 8)
	ctx := context.Background()

	collect := func(seed int64) []int {
		loader, err := ds.NewLoader(LoaderConfig{BatchSize: 3, Shuffle: true, Seed: seed})
		test.That(t, err, test.ShouldBeNil)
		var labels []int
		for {
			batch, err := loader.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			test.That(t, err, test.ShouldBeNil)
			labels = append(labels, batch.Labels...)
		}
		return labels
	}

	first := collect(7)
	second := collect(7)
	test.That(t, first, test.ShouldResemble, second)

	// a permutation of all labels, nothing dropped or duplicated
	seen := map[int]bool{}
	for _, l := range first {
		seen[l] = true
	}
	test.That(t, seen, test.ShouldHaveLength, 8)
}

func TestLoaderTransform(t *testing.T) {
	ds := loaderDataset(t, 2)
	loader, err := ds.NewLoader(LoaderConfig{BatchSize: 2, Transform: Normalize(1, 2)})
	test.That(t, err, test.ShouldBeNil)

	batch, err := loader.Next(context.Background())
	test.That(t, err, test.ShouldBeNil)
	// (0-1)/2, (0-1)/2, (1-1)/2, (10-1)/2
	test.That(t, batch.Inputs.Data(), test.ShouldResemble, []float64{-0.5, -0.5, 0, 4.5})
}

func TestLoaderTransformChain(t *testing.T) {
	tr := Chain(Normalize(0, 2), Normalize(1, 1))
	in := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{4, 6}))
	out, err := tr(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Data(), test.ShouldResemble, []float64{1, 2})

	_, err = Normalize(0, 0)(in)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "std is zero")
}

func TestLoaderShapeMismatch(t *testing.T) {
	samples := []Sample{
		{Input: tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{1, 2})), Label: 0},
		{Input: tensor.New(tensor.WithShape(3), tensor.WithBacking([]float64{1, 2, 3})), Label: 1},
	}
	cat := &fakeCatalog{
		entries: map[string]CatalogEntry{"ragged": {Name: "ragged"}},
		splits:  map[string]map[Split][]Sample{"ragged": {SplitTrain: samples}},
	}
	ds, err := FromCatalog(context.Background(), cat, "ragged", []Split{SplitTrain}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	loader, err := ds.NewLoader(LoaderConfig{BatchSize: 2})
	test.That(t, err, test.ShouldBeNil)
	_, err = loader.Next(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "does not match batch shape")
}

func TestSubsetLoaderNotFound(t *testing.T) {
	ds := loaderDataset(t, 4)
	_, err := ds.NewSubsetLoader(SplitValidation, LoaderConfig{BatchSize: 2})
	test.That(t, errors.Is(err, ErrSubsetNotFound), test.ShouldBeTrue)
}

func TestSubsetLoader(t *testing.T) {
	ds, err := FromCatalog(context.Background(), flowersCatalog(), "flowers",
		[]Split{SplitTrain, SplitValidation}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	loader, err := ds.NewSubsetLoader(SplitValidation, LoaderConfig{BatchSize: 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.NumSamples(), test.ShouldEqual, 2)

	batch, err := loader.Next(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, batch.Labels, test.ShouldResemble, []int{1, 1})
}

func TestSubsetLoaderOrWhole(t *testing.T) {
	ds, err := FromCatalog(context.Background(), flowersCatalog(), "flowers",
		[]Split{SplitTrain, SplitValidation}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	loader, err := ds.NewSubsetLoaderOrWhole(SplitTrain, LoaderConfig{BatchSize: 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.NumSamples(), test.ShouldEqual, 4)

	// no test subset is recorded, so the loader covers everything
	loader, err = ds.NewSubsetLoaderOrWhole(SplitTest, LoaderConfig{BatchSize: 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.NumSamples(), test.ShouldEqual, 6)
}

func TestLoaderContextCancel(t *testing.T) {
	ds := loaderDataset(t, 4)
	loader, err := ds.NewLoader(LoaderConfig{BatchSize: 2})
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loader.Next(ctx)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestLoaderConfigValidation(t *testing.T) {
	ds := loaderDataset(t, 4)
	_, err := ds.NewLoader(LoaderConfig{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "batch size must be positive")
}
