package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/drift"
	"github.com/iphwatch/backend/internal/features"
	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/pkg/utils"
)

const (
	// ArtifactVersion is written into every saved artifact
	ArtifactVersion = "2.0"

	artifactExt   = ".model"
	referenceFile = "drift_reference.json"
)

var (
	ErrArtifactNotFound  = errors.New("manager: model artifact not found")
	ErrReferenceNotFound = errors.New("manager: drift reference not found")
)

// Artifact is the persisted bundle for one model
type Artifact struct {
	Model          json.RawMessage       `json:"model"`
	Performance    domain.TrainingResult `json:"performance"`
	FeatureColumns []string              `json:"feature_columns"`
	ModelType      string                `json:"model_type"`
	SavedAt        time.Time             `json:"saved_at"`
	Version        string                `json:"version"`
}

// Regressor decodes the embedded model
func (a *Artifact) Regressor() (regressor.Regressor, error) {
	v, err := regressor.ParseVariant(a.ModelType)
	if err != nil {
		return nil, err
	}
	return regressor.Decode(v, a.Model)
}

// ArtifactStore keeps snappy-compressed artifacts in a directory, one file
// per model name.
type ArtifactStore struct {
	dir string
	now func() time.Time
}

// NewArtifactStore creates dir if needed
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("manager: failed to create models directory: %w", err)
	}
	return &ArtifactStore{dir: dir, now: time.Now}, nil
}

// Dir returns the storage directory
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// SafeName maps a model name to its file stem
func SafeName(name string) string {
	return strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(strings.TrimSpace(name))
}

func (s *ArtifactStore) path(name string) string {
	return filepath.Join(s.dir, SafeName(name)+artifactExt)
}

// Save writes the model and its performance under name
func (s *ArtifactStore) Save(name string, model regressor.Regressor, perf domain.TrainingResult) error {
	v, err := regressor.ParseVariant(name)
	if err != nil {
		return fmt.Errorf("manager: failed to save %s: %w", name, err)
	}
	encoded, err := regressor.Encode(model)
	if err != nil {
		return err
	}

	a := Artifact{
		Model:          encoded,
		Performance:    perf,
		FeatureColumns: append([]string(nil), features.Columns...),
		ModelType:      v.String(),
		SavedAt:        s.now().UTC(),
		Version:        ArtifactVersion,
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("manager: failed to marshal artifact %s: %w", name, err)
	}
	return writeFile(s.path(name), snappy.Encode(nil, data))
}

// Load reads the artifact saved under name
func (s *ArtifactStore) Load(name string) (*Artifact, error) {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}
		return nil, fmt.Errorf("manager: failed to read artifact %s: %w", name, err)
	}
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to decompress artifact %s: %w", name, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("manager: failed to decode artifact %s: %w", name, err)
	}
	if len(a.FeatureColumns) != features.NumFeatures {
		return nil, fmt.Errorf("manager: artifact %s: %w", name, features.ErrFeatureArity)
	}
	return &a, nil
}

// List describes every artifact on disk, sorted by name
func (s *ArtifactStore) List() ([]domain.AvailableModel, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.AvailableModel{}, nil
		}
		return nil, fmt.Errorf("manager: failed to list models: %w", err)
	}

	models := make([]domain.AvailableModel, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != artifactExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		models = append(models, domain.AvailableModel{
			Name:     strings.TrimSuffix(e.Name(), artifactExt),
			Filename: e.Name(),
			SizeMB:   utils.RoundTo(float64(info.Size())/(1024*1024), 2),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// SaveReference persists the drift reference
func (s *ArtifactStore) SaveReference(ref drift.Reference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("manager: failed to marshal drift reference: %w", err)
	}
	return writeFile(filepath.Join(s.dir, referenceFile), data)
}

// LoadReference reads the drift reference
func (s *ArtifactStore) LoadReference() (drift.Reference, error) {
	var ref drift.Reference
	data, err := os.ReadFile(filepath.Join(s.dir, referenceFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ref, ErrReferenceNotFound
		}
		return ref, fmt.Errorf("manager: failed to read drift reference: %w", err)
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("manager: failed to decode drift reference: %w", err)
	}
	return ref, nil
}

// writeFile replaces path through a temporary file in the same directory
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("manager: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("manager: failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manager: failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("manager: failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
