package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// treeNode is a node in an isolation tree. Leaf nodes have nil children and
// carry the number of training samples that reached them.
type treeNode struct {
	splitDim   int
	splitValue float64
	left       *treeNode
	right      *treeNode
	size       int
}

// Forest is a trained isolation forest. It is immutable after Fit and safe
// for concurrent scoring.
type Forest struct {
	trees      []*treeNode
	sampleSize int
	offset     float64
}

// averagePathLength is c(n), the expected path length of an unsuccessful
// search in a binary search tree built from n samples.
func averagePathLength(n float64) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
	}
}

func buildTree(samples [][]float64, depth, heightLimit int, rng *rand.Rand) *treeNode {
	if depth >= heightLimit || len(samples) <= 1 {
		return &treeNode{size: len(samples)}
	}

	dims := len(samples[0])
	dim := rng.Intn(dims)

	min, max := samples[0][dim], samples[0][dim]
	for _, s := range samples[1:] {
		if s[dim] < min {
			min = s[dim]
		}
		if s[dim] > max {
			max = s[dim]
		}
	}
	if min == max {
		return &treeNode{size: len(samples)}
	}

	split := min + rng.Float64()*(max-min)

	var left, right [][]float64
	for _, s := range samples {
		if s[dim] < split {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	return &treeNode{
		splitDim:   dim,
		splitValue: split,
		left:       buildTree(left, depth+1, heightLimit, rng),
		right:      buildTree(right, depth+1, heightLimit, rng),
	}
}

func pathLength(node *treeNode, x []float64) float64 {
	depth := 0.0
	for node.left != nil {
		if x[node.splitDim] < node.splitValue {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + averagePathLength(float64(node.size))
}

// Fit trains an isolation forest on data. Each tree is grown from a random
// subsample of at most sampleSize vectors, with the usual height limit of
// ceil(log2(sampleSize)). The decision offset is calibrated so that the given
// contamination fraction of the training data falls below zero.
func Fit(data [][]float64, numTrees, sampleSize int, contamination float64, rng *rand.Rand) *Forest {
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	f := &Forest{
		trees:      make([]*treeNode, numTrees),
		sampleSize: sampleSize,
	}

	for i := range f.trees {
		perm := rng.Perm(len(data))
		sample := make([][]float64, sampleSize)
		for j := 0; j < sampleSize; j++ {
			sample[j] = data[perm[j]]
		}
		f.trees[i] = buildTree(sample, 0, heightLimit, rng)
	}

	// Calibrate the decision boundary on the training scores.
	scores := make([]float64, len(data))
	for i, x := range data {
		scores[i] = f.scoreSample(x)
	}
	f.offset = quantile(scores, contamination)

	return f
}

// scoreSample returns the negated anomaly measure -2^(-E(h(x))/c(n)).
// Values lie in (-1, 0); more negative means more isolated.
func (f *Forest) scoreSample(x []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += pathLength(t, x)
	}
	avg := sum / float64(len(f.trees))
	return -math.Pow(2, -avg/averagePathLength(float64(f.sampleSize)))
}

// Decision returns the signed distance from the decision boundary: negative
// values are outliers, and lower values indicate higher abnormality.
func (f *Forest) Decision(x []float64) float64 {
	return f.scoreSample(x) - f.offset
}

// quantile returns the q-quantile of values using linear interpolation.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
