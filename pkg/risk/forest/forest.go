package forest

import (
	"errors"
	"fmt"
)

// Node is one decision node in flattened form. Leaf nodes have Feature == -1
// and carry the positive-class probability in Value; split nodes route to the
// Left child when sample[Feature] <= Threshold.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Scaler holds the standardization parameters fitted on the training
// population. Scoring inputs are transformed with the same parameters.
type Scaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

func (s Scaler) Transform(sample []float64) []float64 {
	scaled := make([]float64, len(sample))
	for i, v := range sample {
		std := s.Stds[i]
		if std == 0 {
			std = 1
		}
		scaled[i] = (v - s.Means[i]) / std
	}
	return scaled
}

// Forest is a fitted ensemble of decision trees for binary deterioration
// risk. Importances are the gini importance of each feature aggregated over
// the ensemble, normalized to sum to 1.
type Forest struct {
	FeatureNames []string  `json:"feature_names"`
	Trees        []Tree    `json:"trees"`
	Importances  []float64 `json:"importances"`
	Scaler       Scaler    `json:"scaler"`
}

// validate checks the flattened structure so predict cannot index out of
// range or revisit a node. The builder always emits a parent before its
// children, so child indices must point strictly forward.
func (t Tree) validate(featureCount int) error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range t.Nodes {
		if node.Feature < 0 {
			continue
		}
		if node.Feature >= featureCount {
			return fmt.Errorf("node %d splits on unknown feature %d", i, node.Feature)
		}
		if node.Left <= i || node.Left >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid left child %d", i, node.Left)
		}
		if node.Right <= i || node.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid right child %d", i, node.Right)
		}
	}
	return nil
}

func (t Tree) predict(sample []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Feature < 0 {
			return node.Value
		}
		if sample[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// Score returns the mean positive-class probability across all trees for one
// raw (unscaled) sample in feature-name order.
func (f *Forest) Score(sample []float64) (float64, error) {
	if len(sample) != len(f.FeatureNames) {
		return 0, fmt.Errorf("expected %d features, got %d", len(f.FeatureNames), len(sample))
	}
	if len(f.Trees) == 0 {
		return 0, errors.New("forest has no trees")
	}

	scaled := f.Scaler.Transform(sample)
	var sum float64
	for _, tree := range f.Trees {
		sum += tree.predict(scaled)
	}
	return sum / float64(len(f.Trees)), nil
}
