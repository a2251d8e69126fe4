// Package forest implements bagged CART decision trees for regression and
// binary/multiclass classification over dense float features.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
)

// Kind selects the tree criterion and how tree outputs are combined.
type Kind int

const (
	// Regression fits variance-reducing splits and averages tree outputs.
	Regression Kind = iota
	// Classification fits Gini splits and takes a majority vote.
	Classification
)

func (k Kind) String() string {
	switch k {
	case Regression:
		return "regression"
	case Classification:
		return "classification"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Params are the forest hyperparameters. Zero values pick defaults.
type Params struct {
	Trees       int   // default 100
	MaxDepth    int   // default 32
	MinLeaf     int   // minimum samples per leaf, default 1
	MaxFeatures int   // features tried per split; default sqrt(p) for classification, p for regression
	Seed        int64 // same seed + same data = same forest
}

func (p Params) withDefaults(kind Kind, nFeatures int) Params {
	if p.Trees <= 0 {
		p.Trees = 100
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 32
	}
	if p.MinLeaf <= 0 {
		p.MinLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > nFeatures {
		if kind == Classification {
			p.MaxFeatures = int(math.Round(math.Sqrt(float64(nFeatures))))
		} else {
			p.MaxFeatures = nFeatures
		}
	}
	if p.MaxFeatures < 1 {
		p.MaxFeatures = 1
	}
	return p
}

// Forest is a fitted ensemble. It is safe for concurrent use.
type Forest struct {
	kind      Kind
	nFeatures int
	classes   []float64 // classification labels, sorted
	trees     []*node
}

type node struct {
	leaf      bool
	value     float64 // mean (regression) or class index (classification)
	feature   int
	threshold float64
	left      *node
	right     *node
}

// Fit trains a forest on X (rows of equal width) and targets y.
func Fit(kind Kind, X [][]float64, y []float64, p Params) (*Forest, error) {
	if len(X) == 0 {
		return nil, errors.New("forest: no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("forest: %d rows but %d targets", len(X), len(y))
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return nil, errors.New("forest: rows have no features")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("forest: row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}
	p = p.withDefaults(kind, nFeatures)

	f := &Forest{kind: kind, nFeatures: nFeatures, trees: make([]*node, p.Trees)}
	b := &builder{X: X, kind: kind, p: p, nFeatures: nFeatures}

	switch kind {
	case Regression:
		b.y = y
	case Classification:
		f.classes, b.yc = indexClasses(y)
		b.nClasses = len(f.classes)
	default:
		return nil, fmt.Errorf("forest: unknown kind %v", kind)
	}

	// Seeds are drawn up front so the result does not depend on scheduling.
	master := rand.New(rand.NewSource(p.Seed))
	seeds := make([]int64, p.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.NumCPU())
	for t := 0; t < p.Trees; t++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(t int) {
			defer wg.Done()
			defer func() { <-sem }()
			rng := rand.New(rand.NewSource(seeds[t]))
			idx := make([]int, len(X))
			for i := range idx {
				idx[i] = rng.Intn(len(X))
			}
			f.trees[t] = b.build(rng, idx, 0)
		}(t)
	}
	wg.Wait()
	return f, nil
}

// Predict returns the forest output for one row: the mean of tree outputs for
// regression, the majority class label for classification (ties go to the
// smaller label).
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != f.nFeatures {
		return 0, fmt.Errorf("forest: row has %d features, want %d", len(x), f.nFeatures)
	}
	if f.kind == Regression {
		sum := 0.0
		for _, t := range f.trees {
			sum += t.eval(x)
		}
		return sum / float64(len(f.trees)), nil
	}

	votes := make([]int, len(f.classes))
	for _, t := range f.trees {
		votes[int(t.eval(x))]++
	}
	best := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return f.classes[best], nil
}

func (n *node) eval(x []float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// indexClasses maps labels to dense class indices in sorted label order.
func indexClasses(y []float64) ([]float64, []int) {
	seen := make(map[float64]bool)
	var classes []float64
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Float64s(classes)
	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	yc := make([]int, len(y))
	for i, v := range y {
		yc[i] = index[v]
	}
	return classes, yc
}

type builder struct {
	X         [][]float64
	y         []float64 // regression targets
	yc        []int     // classification targets
	nClasses  int
	nFeatures int
	kind      Kind
	p         Params
}

func (b *builder) build(rng *rand.Rand, idx []int, depth int) *node {
	n := &node{leaf: true, value: b.leafValue(idx)}
	if depth >= b.p.MaxDepth || len(idx) < 2*b.p.MinLeaf || b.pure(idx) {
		return n
	}
	feature, threshold, ok := b.bestSplit(rng, idx)
	if !ok {
		return n
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature:   feature,
		threshold: threshold,
		left:      b.build(rng, left, depth+1),
		right:     b.build(rng, right, depth+1),
	}
}

func (b *builder) leafValue(idx []int) float64 {
	if b.kind == Regression {
		sum := 0.0
		for _, i := range idx {
			sum += b.y[i]
		}
		return sum / float64(len(idx))
	}
	counts := make([]int, b.nClasses)
	for _, i := range idx {
		counts[b.yc[i]]++
	}
	best := 0
	for c := 1; c < len(counts); c++ {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return float64(best)
}

func (b *builder) pure(idx []int) bool {
	for _, i := range idx[1:] {
		if b.kind == Regression {
			if b.y[i] != b.y[idx[0]] {
				return false
			}
		} else if b.yc[i] != b.yc[idx[0]] {
			return false
		}
	}
	return true
}

// bestSplit searches a random subset of features for the threshold with the
// lowest weighted impurity. ok is false when no split improves on the parent.
func (b *builder) bestSplit(rng *rand.Rand, idx []int) (feature int, threshold float64, ok bool) {
	parent := b.impurity(idx)
	best := parent - 1e-12
	sorted := make([]int, len(idx))

	for _, f := range rng.Perm(b.nFeatures)[:b.p.MaxFeatures] {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })

		if score, thr, found := b.sweep(sorted, f); found && score < best {
			best, feature, threshold, ok = score, f, thr, true
		}
	}
	return feature, threshold, ok
}

// sweep scans split positions along one sorted feature and returns the best
// weighted impurity (sum of squared errors or n-weighted Gini).
func (b *builder) sweep(sorted []int, f int) (best float64, threshold float64, found bool) {
	n := len(sorted)
	minLeaf := b.p.MinLeaf
	best = math.Inf(1)

	if b.kind == Regression {
		var total, totalSq float64
		for _, i := range sorted {
			total += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}
		var left, leftSq float64
		for k := 1; k < n; k++ {
			v := b.y[sorted[k-1]]
			left += v
			leftSq += v * v
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
			if lo == hi {
				continue
			}
			nl, nr := float64(k), float64(n-k)
			right := total - left
			sse := (leftSq - left*left/nl) + ((totalSq - leftSq) - right*right/nr)
			if sse < best {
				best, threshold, found = sse, (lo+hi)/2, true
			}
		}
		return best, threshold, found
	}

	leftCounts := make([]int, b.nClasses)
	rightCounts := make([]int, b.nClasses)
	for _, i := range sorted {
		rightCounts[b.yc[i]]++
	}
	for k := 1; k < n; k++ {
		c := b.yc[sorted[k-1]]
		leftCounts[c]++
		rightCounts[c]--
		if k < minLeaf || n-k < minLeaf {
			continue
		}
		lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
		if lo == hi {
			continue
		}
		score := float64(k)*gini(leftCounts, k) + float64(n-k)*gini(rightCounts, n-k)
		if score < best {
			best, threshold, found = score, (lo+hi)/2, true
		}
	}
	return best, threshold, found
}

// impurity returns the parent node impurity on the same scale as sweep.
func (b *builder) impurity(idx []int) float64 {
	n := len(idx)
	if b.kind == Regression {
		var sum, sq float64
		for _, i := range idx {
			sum += b.y[i]
			sq += b.y[i] * b.y[i]
		}
		return sq - sum*sum/float64(n)
	}
	counts := make([]int, b.nClasses)
	for _, i := range idx {
		counts[b.yc[i]]++
	}
	return float64(n) * gini(counts, n)
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}
