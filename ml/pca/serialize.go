package pca

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// subspaceRecord is the on-disk form of a fitted subspace.
type subspaceRecord struct {
	Mean   []float64
	Data   []float64
	Rows   int
	Cols   int
	Ratios []float64
}

// GobEncode implements gob.GobEncoder. Encoding an unfitted subspace fails
// with ErrNotFitted.
func (s *Subspace) GobEncode() ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, cols := s.components.Dims()
	rec := subspaceRecord{
		Mean:   s.mean,
		Data:   s.components.RawMatrix().Data,
		Rows:   rows,
		Cols:   cols,
		Ratios: s.ratios,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (s *Subspace) GobDecode(data []byte) error {
	var rec subspaceRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return err
	}
	if rec.Rows == 0 || rec.Cols == 0 || len(rec.Data) != rec.Rows*rec.Cols {
		return errors.New("malformed subspace record")
	}
	s.mean = rec.Mean
	s.components = mat.NewDense(rec.Rows, rec.Cols, rec.Data)
	s.ratios = rec.Ratios
	return nil
}

// Save writes the fitted subspace to the given file.
func (s *Subspace) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if err := gob.NewEncoder(f).Encode(s); err != nil {
		return errors.Wrapf(err, "cannot write subspace to %s", path)
	}
	return nil
}

// Load reads a subspace previously written by Save.
func Load(path string) (*Subspace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	var s Subspace
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "cannot read subspace from %s", path)
	}
	return &s, nil
}
