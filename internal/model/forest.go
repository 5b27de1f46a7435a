package model

import (
	"fmt"
	"math/rand"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Forest is a fitted ensemble of decision trees. The fraud probability of
// an input is the mean leaf probability across trees.
type Forest struct {
	Trees []*TreeNode

	// Hyperparameters recorded for the artifact.
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	Seed            int64
}

// FitForest trains an ensemble on the preprocessed matrix. Each tree sees
// a bootstrap resample of the training set; determinism comes from the
// seed, with each tree owning a derived RNG.
func FitForest(x [][]float64, y []bool, cfg domain.ModelConfig) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("invalid training matrix: %d rows, %d labels", len(x), len(y))
	}

	f := &Forest{
		Trees:           make([]*TreeNode, cfg.Trees),
		NumTrees:        cfg.Trees,
		MaxDepth:        cfg.MaxDepth,
		MinSamplesSplit: cfg.MinSamplesSplit,
		Seed:            cfg.Seed,
	}

	params := treeParams{
		maxDepth:        cfg.MaxDepth,
		minSamplesSplit: cfg.MinSamplesSplit,
		legitWeight:     cfg.LegitWeight,
		fraudWeight:     cfg.FraudWeight,
		featureSubset:   sqrtFeatures(len(x[0])),
	}

	n := len(x)
	for t := 0; t < cfg.Trees; t++ {
		rng := rand.New(rand.NewSource(cfg.Seed + int64(t)))

		indices := make([]int, n)
		for i := range indices {
			indices[i] = rng.Intn(n)
		}

		f.Trees[t] = growTree(x, y, indices, params, rng)
	}

	return f, nil
}

// PredictProba returns the fraud probability for one preprocessed input.
func (f *Forest) PredictProba(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, tree := range f.Trees {
		sum += tree.predict(x)
	}
	return sum / float64(len(f.Trees))
}

// Predict returns the hard label at the conventional 0.5 cut.
func (f *Forest) Predict(x []float64) bool {
	return f.PredictProba(x) >= 0.5
}
