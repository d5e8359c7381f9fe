package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/clinical-ews/platform/pkg/risk/forest"
)

var (
	ErrModelUnavailable     = errors.New("no fitted risk model is loaded")
	ErrInvalidFeatureVector = errors.New("invalid feature vector")
)

// FeatureNames is the canonical feature order the model is trained with.
// The named-field FeatureVector below is the only way to build a sample, so
// stored-column order can never silently drift from model input order.
var FeatureNames = []string{
	"heart_rate",
	"bp_systolic",
	"bp_diastolic",
	"respiratory_rate",
	"temperature",
	"oxygen_saturation",
}

// FeatureVector carries the six vital signs fed to the classifier.
type FeatureVector struct {
	HeartRate        float64
	BPSystolic       float64
	BPDiastolic      float64
	RespiratoryRate  float64
	Temperature      float64
	OxygenSaturation float64
}

func (fv FeatureVector) byName() map[string]float64 {
	return map[string]float64{
		"heart_rate":        fv.HeartRate,
		"bp_systolic":       fv.BPSystolic,
		"bp_diastolic":      fv.BPDiastolic,
		"respiratory_rate":  fv.RespiratoryRate,
		"temperature":       fv.Temperature,
		"oxygen_saturation": fv.OxygenSaturation,
	}
}

// Factor is one entry of a prediction's ranked explanation.
type Factor struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Model is the process-wide handle to the fitted classifier. The forest is
// immutable once published; Swap replaces the whole pointer so in-flight
// scoring calls keep the forest they started with.
type Model struct {
	forest atomic.Pointer[forest.Forest]
}

func NewModel() *Model {
	return &Model{}
}

// LoadFrom reads an artifact and atomically publishes it.
func (m *Model) LoadFrom(path string) error {
	f, err := forest.LoadArtifact(path)
	if err != nil {
		return err
	}
	if err := checkFeatureIdentity(f.FeatureNames); err != nil {
		return err
	}
	m.forest.Store(f)
	return nil
}

// Swap publishes an already-fitted forest, for tests and for callers that
// train in-process.
func (m *Model) Swap(f *forest.Forest) error {
	if err := checkFeatureIdentity(f.FeatureNames); err != nil {
		return err
	}
	m.forest.Store(f)
	return nil
}

func (m *Model) Ready() bool {
	return m.forest.Load() != nil
}

// Score produces the deterioration probability and the ranked contributing
// factors for one feature vector.
func (m *Model) Score(fv FeatureVector) (float64, []Factor, error) {
	f := m.forest.Load()
	if f == nil {
		return 0, nil, ErrModelUnavailable
	}

	values := fv.byName()
	sample := make([]float64, len(f.FeatureNames))
	for i, name := range f.FeatureNames {
		v, ok := values[name]
		if !ok {
			return 0, nil, fmt.Errorf("model expects unknown feature %q: %w", name, ErrInvalidFeatureVector)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, nil, fmt.Errorf("feature %q is not finite: %w", name, ErrInvalidFeatureVector)
		}
		sample[i] = v
	}

	probability, err := f.Score(sample)
	if err != nil {
		return 0, nil, err
	}
	return probability, contributingFactors(f, sample), nil
}

// contributingFactors weights each feature's global gini importance by how
// far the observed value sits from the training-population mean, so the
// explanation reflects this prediction rather than the model in general.
func contributingFactors(f *forest.Forest, sample []float64) []Factor {
	factors := make([]Factor, len(f.FeatureNames))
	var total float64
	for i, name := range f.FeatureNames {
		std := f.Scaler.Stds[i]
		if std == 0 {
			std = 1
		}
		z := math.Abs((sample[i] - f.Scaler.Means[i]) / std)
		weight := f.Importances[i] * (1 + z)
		factors[i] = Factor{Feature: name, Weight: weight}
		total += weight
	}
	if total > 0 {
		for i := range factors {
			factors[i].Weight /= total
		}
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Weight > factors[j].Weight
	})
	return factors
}

func checkFeatureIdentity(names []string) error {
	if len(names) != len(FeatureNames) {
		return fmt.Errorf("model has %d features, pipeline provides %d: %w",
			len(names), len(FeatureNames), ErrInvalidFeatureVector)
	}
	expected := make(map[string]struct{}, len(FeatureNames))
	for _, n := range FeatureNames {
		expected[n] = struct{}{}
	}
	for _, n := range names {
		if _, ok := expected[n]; !ok {
			return fmt.Errorf("model feature %q is not a pipeline vital sign: %w", n, ErrInvalidFeatureVector)
		}
	}
	return nil
}
