package forest

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

type Options struct {
	NumTrees       int
	MaxDepth       int
	MinLeafSamples int
	Seed           int64
}

type Metrics struct {
	Accuracy     float64
	PositiveRate float64
}

// Train fits a random forest with bootstrap sampling, per-node random
// feature subsets and balanced class weights. Deterioration events are rare
// in realistic vitals data, so without the reweighting the trees would learn
// to always predict the majority class.
func Train(samples [][]float64, labels []float64, featureNames []string, opts Options) (*Forest, Metrics, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, Metrics{}, errors.New("training data is empty or misaligned")
	}
	featureCount := len(featureNames)
	for _, s := range samples {
		if len(s) != featureCount {
			return nil, Metrics{}, errors.New("sample width does not match feature names")
		}
	}
	if opts.NumTrees <= 0 {
		opts.NumTrees = 100
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.MinLeafSamples <= 0 {
		opts.MinLeafSamples = 1
	}

	scaler := fitScaler(samples, featureCount)
	scaled := make([][]float64, len(samples))
	for i, s := range samples {
		scaled[i] = scaler.Transform(s)
	}

	classWeights := balancedWeights(labels)
	rng := rand.New(rand.NewSource(opts.Seed))
	subsetSize := int(math.Ceil(math.Sqrt(float64(featureCount))))

	trees := make([]Tree, 0, opts.NumTrees)
	importances := make([]float64, featureCount)
	for t := 0; t < opts.NumTrees; t++ {
		indices := make([]int, len(scaled))
		for i := range indices {
			indices[i] = rng.Intn(len(scaled))
		}

		b := &treeBuilder{
			samples:      scaled,
			labels:       labels,
			classWeights: classWeights,
			maxDepth:     opts.MaxDepth,
			minLeaf:      opts.MinLeafSamples,
			subsetSize:   subsetSize,
			featureCount: featureCount,
			rng:          rng,
			importances:  make([]float64, featureCount),
		}
		b.build(indices, 0)
		trees = append(trees, Tree{Nodes: b.nodes})

		normalize(b.importances)
		for i, imp := range b.importances {
			importances[i] += imp
		}
	}
	normalize(importances)

	f := &Forest{
		FeatureNames: featureNames,
		Trees:        trees,
		Importances:  importances,
		Scaler:       scaler,
	}
	return f, evaluate(f, samples, labels), nil
}

func fitScaler(samples [][]float64, featureCount int) Scaler {
	means := make([]float64, featureCount)
	stds := make([]float64, featureCount)
	n := float64(len(samples))
	for _, s := range samples {
		for j, v := range s {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, s := range samples {
		for j, v := range s {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
	}
	return Scaler{Means: means, Stds: stds}
}

// balancedWeights mirrors sklearn's class_weight="balanced":
// weight_c = n / (numClasses * count_c).
func balancedWeights(labels []float64) [2]float64 {
	var pos float64
	for _, l := range labels {
		if l == 1 {
			pos++
		}
	}
	n := float64(len(labels))
	neg := n - pos
	weights := [2]float64{1, 1}
	if neg > 0 {
		weights[0] = n / (2 * neg)
	}
	if pos > 0 {
		weights[1] = n / (2 * pos)
	}
	return weights
}

type treeBuilder struct {
	samples      [][]float64
	labels       []float64
	classWeights [2]float64
	maxDepth     int
	minLeaf      int
	subsetSize   int
	featureCount int
	rng          *rand.Rand
	nodes        []Node
	importances  []float64
}

func (b *treeBuilder) weightOf(idx int) float64 {
	if b.labels[idx] == 1 {
		return b.classWeights[1]
	}
	return b.classWeights[0]
}

func (b *treeBuilder) weightedCounts(indices []int) (total, positive float64) {
	for _, idx := range indices {
		w := b.weightOf(idx)
		total += w
		if b.labels[idx] == 1 {
			positive += w
		}
	}
	return total, positive
}

func gini(total, positive float64) float64 {
	if total == 0 {
		return 0
	}
	p := positive / total
	return 2 * p * (1 - p)
}

// build grows the subtree for indices and returns its node index.
func (b *treeBuilder) build(indices []int, depth int) int {
	total, positive := b.weightedCounts(indices)
	impurity := gini(total, positive)

	if depth >= b.maxDepth || len(indices) < 2*b.minLeaf || impurity == 0 {
		return b.leaf(total, positive)
	}

	feature, threshold, gain := b.bestSplit(indices, total, positive, impurity)
	if gain <= 0 {
		return b.leaf(total, positive)
	}

	var left, right []int
	for _, idx := range indices {
		if b.samples[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) < b.minLeaf || len(right) < b.minLeaf {
		return b.leaf(total, positive)
	}

	b.importances[feature] += gain

	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: feature, Threshold: threshold})
	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.nodes[nodeIdx].Left = leftIdx
	b.nodes[nodeIdx].Right = rightIdx
	return nodeIdx
}

func (b *treeBuilder) leaf(total, positive float64) int {
	value := 0.0
	if total > 0 {
		value = positive / total
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: value})
	return idx
}

func (b *treeBuilder) bestSplit(indices []int, total, positive, impurity float64) (int, float64, float64) {
	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0

	for _, feature := range b.featureSubset() {
		sorted := make([]int, len(indices))
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return b.samples[sorted[i]][feature] < b.samples[sorted[j]][feature]
		})

		var leftTotal, leftPositive float64
		for i := 0; i < len(sorted)-1; i++ {
			idx := sorted[i]
			w := b.weightOf(idx)
			leftTotal += w
			if b.labels[idx] == 1 {
				leftPositive += w
			}

			current := b.samples[idx][feature]
			next := b.samples[sorted[i+1]][feature]
			if current == next {
				continue
			}

			rightTotal := total - leftTotal
			rightPositive := positive - leftPositive
			weightedImpurity := (leftTotal*gini(leftTotal, leftPositive) +
				rightTotal*gini(rightTotal, rightPositive)) / total
			gain := (impurity - weightedImpurity) * total

			if gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = (current + next) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func (b *treeBuilder) featureSubset() []int {
	perm := b.rng.Perm(b.featureCount)
	size := b.subsetSize
	if size > b.featureCount {
		size = b.featureCount
	}
	return perm[:size]
}

func normalize(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range values {
		values[i] /= sum
	}
}

func evaluate(f *Forest, samples [][]float64, labels []float64) Metrics {
	var correct, pos float64
	for i, s := range samples {
		p, err := f.Score(s)
		if err != nil {
			continue
		}
		predicted := 0.0
		if p >= 0.5 {
			predicted = 1
		}
		if predicted == labels[i] {
			correct++
		}
		if labels[i] == 1 {
			pos++
		}
	}
	n := float64(len(samples))
	return Metrics{Accuracy: correct / n, PositiveRate: pos / n}
}
