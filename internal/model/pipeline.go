package model

import (
	"fmt"
	"math/rand"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
)

// Pipeline is the fitted preprocessing stage plus the fitted classifier.
// Once trained it is never mutated; concurrent reads are safe.
type Pipeline struct {
	Preprocessor *Preprocessor
	Forest       *Forest
	Version      string
}

// Report summarizes held-out evaluation after training.
type Report struct {
	TrainSize int
	TestSize  int

	// Confusion matrix on the held-out set at the 0.5 cut.
	TruePositives  int
	TrueNegatives  int
	FalsePositives int
	FalseNegatives int

	Precision float64
	Recall    float64
	F1        float64
}

// Train fits the full pipeline: stratified train/test split, preprocessor
// fit on the training partition only, forest fit on the transformed
// matrix, evaluation on the held-out partition.
func Train(vectors []*feature.Vector, labels []bool, cfg domain.ModelConfig) (*Pipeline, *Report, error) {
	if len(vectors) != len(labels) {
		return nil, nil, fmt.Errorf("vector/label length mismatch: %d vs %d", len(vectors), len(labels))
	}
	if len(vectors) < 10 {
		return nil, nil, fmt.Errorf("not enough records to train: %d", len(vectors))
	}

	trainIdx, testIdx := stratifiedSplit(labels, cfg.TestFraction, cfg.Seed)

	trainVectors := make([]*feature.Vector, len(trainIdx))
	trainLabels := make([]bool, len(trainIdx))
	for i, idx := range trainIdx {
		trainVectors[i] = vectors[idx]
		trainLabels[i] = labels[idx]
	}

	pre := NewPreprocessor()
	if err := pre.Fit(trainVectors); err != nil {
		return nil, nil, fmt.Errorf("failed to fit preprocessor: %w", err)
	}

	x, err := pre.TransformAll(trainVectors)
	if err != nil {
		return nil, nil, err
	}

	forest, err := FitForest(x, trainLabels, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	p := &Pipeline{
		Preprocessor: pre,
		Forest:       forest,
		Version:      fmt.Sprintf("rf-%d-d%d-s%d", cfg.Trees, cfg.MaxDepth, cfg.Seed),
	}

	report := &Report{TrainSize: len(trainIdx), TestSize: len(testIdx)}
	for _, idx := range testIdx {
		prob, err := p.PredictProba(vectors[idx])
		if err != nil {
			return nil, nil, err
		}
		predicted := prob >= 0.5
		switch {
		case predicted && labels[idx]:
			report.TruePositives++
		case predicted && !labels[idx]:
			report.FalsePositives++
		case !predicted && labels[idx]:
			report.FalseNegatives++
		default:
			report.TrueNegatives++
		}
	}
	report.finalize()

	return p, report, nil
}

// PredictProba returns the fraud probability for one feature vector using
// the fitted preprocessing state.
func (p *Pipeline) PredictProba(v *feature.Vector) (float64, error) {
	if p == nil || p.Preprocessor == nil || p.Forest == nil {
		return 0, domain.ErrModelUnavailable
	}
	x, err := p.Preprocessor.Transform(v)
	if err != nil {
		return 0, err
	}
	return p.Forest.PredictProba(x), nil
}

// stratifiedSplit partitions indices into train and test sets, holding
// out testFraction of each class. The shuffle is seeded so the split is
// reproducible.
func stratifiedSplit(labels []bool, testFraction float64, seed int64) (train, test []int) {
	if testFraction <= 0 || testFraction >= 1 {
		testFraction = 0.2
	}

	var fraud, legit []int
	for i, l := range labels {
		if l {
			fraud = append(fraud, i)
		} else {
			legit = append(legit, i)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(fraud), func(i, j int) { fraud[i], fraud[j] = fraud[j], fraud[i] })
	rng.Shuffle(len(legit), func(i, j int) { legit[i], legit[j] = legit[j], legit[i] })

	split := func(class []int) {
		cut := int(float64(len(class)) * testFraction)
		test = append(test, class[:cut]...)
		train = append(train, class[cut:]...)
	}
	split(legit)
	split(fraud)
	return train, test
}

func (r *Report) finalize() {
	if r.TruePositives+r.FalsePositives > 0 {
		r.Precision = float64(r.TruePositives) / float64(r.TruePositives+r.FalsePositives)
	}
	if r.TruePositives+r.FalseNegatives > 0 {
		r.Recall = float64(r.TruePositives) / float64(r.TruePositives+r.FalseNegatives)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
}
