package forest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact is the on-disk model format written by the trainer and consumed
// by the serving process.
type Artifact struct {
	Model struct {
		Type      string `json:"type"`
		Algorithm string `json:"algorithm"`
		Forest    Forest `json:"forest"`
	} `json:"model"`
	TrainedAt time.Time          `json:"trained_at"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

const artifactAlgorithm = "random_forest"

// WriteArtifact serializes a fitted forest to path, creating parent
// directories as needed.
func WriteArtifact(path string, f *Forest, metrics Metrics) error {
	var artifact Artifact
	artifact.Model.Type = "classifier"
	artifact.Model.Algorithm = artifactAlgorithm
	artifact.Model.Forest = *f
	artifact.TrainedAt = time.Now().UTC()
	artifact.Metrics = map[string]float64{
		"accuracy":      metrics.Accuracy,
		"positive_rate": metrics.PositiveRate,
	}

	content, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// LoadArtifact reads and checks a model artifact.
func LoadArtifact(path string) (*Forest, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if artifact.Model.Algorithm != artifactAlgorithm {
		return nil, fmt.Errorf("unsupported algorithm %q", artifact.Model.Algorithm)
	}
	f := artifact.Model.Forest
	if len(f.FeatureNames) == 0 || len(f.Trees) == 0 {
		return nil, fmt.Errorf("artifact %s has no fitted model", path)
	}
	if len(f.Scaler.Means) != len(f.FeatureNames) || len(f.Importances) != len(f.FeatureNames) {
		return nil, fmt.Errorf("artifact %s is internally inconsistent", path)
	}
	for i, tree := range f.Trees {
		if err := tree.validate(len(f.FeatureNames)); err != nil {
			return nil, fmt.Errorf("artifact %s tree %d: %w", path, i, err)
		}
	}
	return &f, nil
}
