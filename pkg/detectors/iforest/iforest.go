// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

var (
	// ErrEmptyData is returned when fitting on no samples.
	ErrEmptyData = errors.New("empty training data")
	// ErrNotTrained is returned when scoring before Fit.
	ErrNotTrained = errors.New("model not trained")
)

const eulerGamma = 0.5772156649015329

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	maxSamples    int
	contamination float64
	seed          int64

	// Trained model
	rng        *rand.Rand
	trees      []*iTree
	trained    bool
	nFeatures  int
	sampleSize int
	maxDepth   int
	threshold  float64

	// Statistics from training
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the upper bound of the subsample drawn for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.maxSamples = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed. The generator is reseeded on every Fit,
// so fitting the same data twice builds the same forest.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		maxSamples:    256,
		contamination: 0.05,
		seed:          42,
		threshold:     0.5,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Method implements detectors.Detector.
func (f *IsolationForest) Method() detectors.Method {
	return detectors.MethodIsolationForest
}

// Detect standardizes the amount column, fits the forest on it and flags
// outliers. Scores follow ScoreSamples: higher is more normal. A constant
// column yields an all-false column with zero scores.
func (f *IsolationForest) Detect(in detectors.Input) (detectors.Column, error) {
	n := in.Len()
	if detectors.Constant(in.Amounts) {
		return detectors.Empty(detectors.MethodIsolationForest, n), nil
	}
	mean := detectors.Mean(in.Amounts)
	std := detectors.PopulationStd(in.Amounts)
	if std == 0 {
		return detectors.Empty(detectors.MethodIsolationForest, n), nil
	}

	data := make([][]float64, n)
	for i, v := range in.Amounts {
		data[i] = []float64{(v - mean) / std}
	}

	if err := f.Fit(data); err != nil {
		return detectors.Column{}, err
	}

	scores, err := f.ScoreSamples(data)
	if err != nil {
		return detectors.Column{}, err
	}

	threshold := f.Threshold()
	col := detectors.Column{
		Method: detectors.MethodIsolationForest,
		Flags:  make([]bool, n),
		Scores: scores,
	}
	for i, s := range scores {
		col.Flags[i] = -s > threshold
	}
	return col, nil
}

// Fit trains the Isolation Forest on the provided data.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return ErrEmptyData
	}
	if f.nTrees < 1 {
		return fmt.Errorf("invalid number of trees: %d", f.nTrees)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return errors.New("samples have no features")
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(row), nFeatures)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("sample %d contains a non-finite value", i)
			}
		}
	}

	// Adjust sample size if needed
	sampleSize := f.maxSamples
	if sampleSize <= 0 || sampleSize > nSamples {
		sampleSize = nSamples
	}

	f.rng = rand.New(rand.NewSource(f.seed))
	f.nFeatures = nFeatures
	f.sampleSize = sampleSize
	f.maxDepth = int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))

	// Build trees
	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = f.buildTree(sample, nFeatures, 0)
	}

	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	// Set threshold based on contamination
	scores := f.predict(data)
	f.threshold = detectors.Quantile(scores, 1-f.contamination)

	return nil
}

// buildTree recursively builds an isolation tree.
func (f *IsolationForest) buildTree(data [][]float64, nFeatures, depth int) *iTree {
	return &iTree{
		root: f.buildNode(data, nFeatures, depth),
	}
}

func (f *IsolationForest) buildNode(data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := f.rng.Intn(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(leftData, nFeatures, depth+1),
		right:        f.buildNode(rightData, nFeatures, depth+1),
	}
}

// Predict returns anomaly scores in (0, 1] for the given samples.
// Higher values indicate anomalies.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}
	if err := f.checkWidth(data); err != nil {
		return nil, err
	}

	return f.predict(data), nil
}

// ScoreSamples returns the opposite of Predict: values in [-1, 0) where
// lower means more anomalous.
func (f *IsolationForest) ScoreSamples(data [][]float64) ([]float64, error) {
	scores, err := f.Predict(data)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] = -scores[i]
	}
	return scores, nil
}

func (f *IsolationForest) predict(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.predictOne(sample)
	}
	return scores
}

func (f *IsolationForest) checkWidth(data [][]float64) error {
	for i, sample := range data {
		if len(sample) != f.nFeatures {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(sample), f.nFeatures)
		}
	}
	return nil
}

func (f *IsolationForest) predictOne(sample []float64) float64 {
	// A forest fitted on a single sample cannot isolate anything.
	if f.avgPathLength == 0 {
		return 0.5
	}

	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n))
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, with H(i) ~ ln(i) + Euler-Mascheroni
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

// SampleSize returns the upper bound of the per-tree subsample.
func (f *IsolationForest) SampleSize() int {
	return f.maxSamples
}

// Threshold returns the anomaly score above which a sample is an outlier.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}
