// Package checkpoint persists model weights between training runs.
//
// A Store roots one model's checkpoints in a directory and keys them by
// epoch. Every save writes a gob blob next to a human readable JSON
// metadata file; the best checkpoint so far is additionally kept under a
// fixed name so later runs can start from it without scanning history.
package checkpoint

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/ashahba/transfer-learning/ml"
	tlutils "github.com/ashahba/transfer-learning/utils"
)

// Metadata describes one saved checkpoint.
type Metadata struct {
	Epoch   int       `json:"epoch"`
	Arch    string    `json:"arch"`
	Loss    float64   `json:"loss"`
	RunID   string    `json:"run_id"`
	SavedAt time.Time `json:"saved_at"`
}

type checkpointRecord struct {
	Meta  Metadata
	State ml.Tensors
}

// Store writes and reads checkpoints for a single model under
// <outputDir>/<model>_checkpoints.
type Store struct {
	model  string
	dir    string
	logger golog.Logger
}

// NewStore prepares the checkpoint directory for the given model.
func NewStore(outputDir, model string, logger golog.Logger) (*Store, error) {
	if model == "" {
		return nil, errors.New("model name cannot be empty")
	}
	dir := filepath.Join(outputDir, tlutils.SafeFileName(model)+"_checkpoints")
	if err := tlutils.EnsureDirectory(dir); err != nil {
		return nil, err
	}
	return &Store{model: model, dir: dir, logger: logger}, nil
}

// Dir returns the directory checkpoints are kept in.
func (s *Store) Dir() string {
	return s.dir
}

// EpochPath returns the path the given epoch's checkpoint is written to.
func (s *Store) EpochPath(epoch int) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint_%04d.bin", epoch))
}

// BestPath returns the path the best checkpoint copy is kept at.
func (s *Store) BestPath() string {
	return filepath.Join(s.dir, "checkpoint_best.bin")
}

// Save writes the state and metadata for meta.Epoch and refreshes the best
// copy when isBest is set. Metadata fields the caller left unset are
// stamped here. The path of the epoch checkpoint is returned.
func (s *Store) Save(state ml.Tensors, meta Metadata, isBest bool) (string, error) {
	if len(state) == 0 {
		return "", errors.New("refusing to save a checkpoint with no weights")
	}
	if meta.Epoch < 0 {
		return "", errors.Errorf("epoch cannot be negative, got %d", meta.Epoch)
	}
	if meta.Arch == "" {
		meta.Arch = s.model
	}
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now()
	}

	path := s.EpochPath(meta.Epoch)
	if err := writeRecord(path, checkpointRecord{Meta: meta, State: state}); err != nil {
		return "", err
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "cannot marshal checkpoint metadata")
	}
	if err := os.WriteFile(sidecarPath(path), metaJSON, 0o600); err != nil {
		return "", errors.Wrapf(err, "cannot write checkpoint metadata for epoch %d", meta.Epoch)
	}
	if isBest {
		blob, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrap(err, "cannot refresh the best checkpoint")
		}
		if err := os.WriteFile(s.BestPath(), blob, 0o600); err != nil {
			return "", errors.Wrap(err, "cannot refresh the best checkpoint")
		}
		if err := os.WriteFile(sidecarPath(s.BestPath()), metaJSON, 0o600); err != nil {
			return "", errors.Wrap(err, "cannot refresh the best checkpoint metadata")
		}
	}
	s.logger.Debugw("checkpoint saved",
		"path", path,
		"epoch", meta.Epoch,
		"loss", meta.Loss,
		"best", isBest,
	)
	return path, nil
}

// Latest returns the path of the highest epoch checkpoint on disk.
func (s *Store) Latest() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", errors.Wrapf(err, "cannot list checkpoints under %s", s.dir)
	}
	latest := -1
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		// the best copy has no epoch number and is skipped here
		epoch, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint_"), ".bin"))
		if err != nil {
			continue
		}
		if epoch > latest {
			latest = epoch
		}
	}
	if latest < 0 {
		return "", errors.Errorf("no checkpoints under %s", s.dir)
	}
	return s.EpochPath(latest), nil
}

// LoadBest reads the best checkpoint copy back.
func (s *Store) LoadBest() (ml.Tensors, Metadata, error) {
	return Load(s.BestPath())
}

// Load reads a checkpoint written by Save from an arbitrary path.
func Load(path string) (ml.Tensors, Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "cannot read checkpoint from %s", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	var rec checkpointRecord
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "cannot decode checkpoint %s", path)
	}
	if len(rec.State) == 0 {
		return nil, Metadata{}, errors.Errorf("checkpoint %s has no weights", path)
	}
	return rec.State, rec.Meta, nil
}

func writeRecord(path string, rec checkpointRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot write checkpoint to %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return errors.Wrapf(gob.NewEncoder(f).Encode(rec), "cannot encode checkpoint %s", path)
}

func sidecarPath(binPath string) string {
	return strings.TrimSuffix(binPath, filepath.Ext(binPath)) + ".json"
}
