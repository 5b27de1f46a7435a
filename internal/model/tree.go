package model

import (
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a fitted decision tree. Exported fields so the
// whole tree serializes with encoding/gob.
type TreeNode struct {
	// Leaf nodes carry the weighted fraud fraction of their samples.
	Leaf      bool
	FraudProb float64

	// Split nodes route on Feature <= Threshold.
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
}

// treeParams bundles the growth limits and class weights.
type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	legitWeight     float64
	fraudWeight     float64
	featureSubset   int
}

// growTree builds one decision tree on the given sample indices.
// Candidate features are drawn per split from a random subset, which is
// what decorrelates the trees of the ensemble.
func growTree(x [][]float64, y []bool, indices []int, p treeParams, rng *rand.Rand) *TreeNode {
	return grow(x, y, indices, p, rng, 0)
}

func grow(x [][]float64, y []bool, indices []int, p treeParams, rng *rand.Rand, depth int) *TreeNode {
	legit, fraud := weightedCounts(y, indices, p)
	total := legit + fraud

	node := &TreeNode{FraudProb: 0}
	if total > 0 {
		node.FraudProb = fraud / total
	}

	// Stop on purity, depth or sample budget.
	if legit == 0 || fraud == 0 || depth >= p.maxDepth || len(indices) < p.minSamplesSplit {
		node.Leaf = true
		return node
	}

	bestFeature, bestThreshold, bestGain := findBestSplit(x, y, indices, p, rng)
	if bestGain <= 0 {
		node.Leaf = true
		return node
	}

	var left, right []int
	for _, i := range indices {
		if x[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		node.Leaf = true
		return node
	}

	node.Feature = bestFeature
	node.Threshold = bestThreshold
	node.Left = grow(x, y, left, p, rng, depth+1)
	node.Right = grow(x, y, right, p, rng, depth+1)
	return node
}

// findBestSplit scans a random feature subset for the split with the best
// weighted Gini gain.
func findBestSplit(x [][]float64, y []bool, indices []int, p treeParams, rng *rand.Rand) (int, float64, float64) {
	nFeatures := len(x[indices[0]])
	subset := p.featureSubset
	if subset <= 0 || subset > nFeatures {
		subset = nFeatures
	}

	features := rng.Perm(nFeatures)[:subset]

	parentLegit, parentFraud := weightedCounts(y, indices, p)
	parentImpurity := gini(parentLegit, parentFraud)
	parentTotal := parentLegit + parentFraud

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0

	values := make([]float64, len(indices))
	for _, f := range features {
		for i, idx := range indices {
			values[i] = x[idx][f]
		}
		sort.Float64s(values)

		// Candidate thresholds are midpoints between distinct sorted
		// values.
		for i := 1; i < len(values); i++ {
			if values[i] == values[i-1] {
				continue
			}
			threshold := (values[i] + values[i-1]) / 2

			var lLegit, lFraud, rLegit, rFraud float64
			for _, idx := range indices {
				w := p.legitWeight
				if y[idx] {
					w = p.fraudWeight
				}
				if x[idx][f] <= threshold {
					if y[idx] {
						lFraud += w
					} else {
						lLegit += w
					}
				} else {
					if y[idx] {
						rFraud += w
					} else {
						rLegit += w
					}
				}
			}

			lTotal := lLegit + lFraud
			rTotal := rLegit + rFraud
			if lTotal == 0 || rTotal == 0 {
				continue
			}

			weighted := (lTotal/parentTotal)*gini(lLegit, lFraud) +
				(rTotal/parentTotal)*gini(rLegit, rFraud)
			gain := parentImpurity - weighted
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

// predict walks the tree to a leaf and returns its fraud fraction.
func (n *TreeNode) predict(x []float64) float64 {
	node := n
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.FraudProb
}

// weightedCounts sums the class weights over the indexed samples.
func weightedCounts(y []bool, indices []int, p treeParams) (legit, fraud float64) {
	for _, i := range indices {
		if y[i] {
			fraud += p.fraudWeight
		} else {
			legit += p.legitWeight
		}
	}
	return legit, fraud
}

// gini computes the binary Gini impurity of a weighted class count pair.
func gini(legit, fraud float64) float64 {
	total := legit + fraud
	if total == 0 {
		return 0
	}
	pl := legit / total
	pf := fraud / total
	return 1 - pl*pl - pf*pf
}

// sqrtFeatures is the conventional feature-subset size for classification
// forests.
func sqrtFeatures(n int) int {
	s := int(math.Sqrt(float64(n)))
	if s < 1 {
		return 1
	}
	return s
}
