// Package model implements the fraud classification pipeline: a fitted
// preprocessing stage feeding an ensemble of decision trees.
package model

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
)

// Preprocessor holds the fitted preprocessing state: robust scaling
// parameters for the numeric features and the one-hot layout for the
// merchant category. Booleans pass through unchanged.
//
// The fitted state from training is reused verbatim at inference.
// Refitting on live input would silently shift the feature space and is a
// correctness bug, not a shortcut.
type Preprocessor struct {
	// Medians and Scales are per numeric feature; scale is the
	// interquartile range (p75 − p25), resistant to the extreme outliers
	// typical of card amounts.
	Medians [feature.NumNumeric]float64
	Scales  [feature.NumNumeric]float64

	// Categories fixes the one-hot column order.
	Categories []domain.MerchantCategory

	Fitted bool
}

// NewPreprocessor creates an unfitted preprocessor over the fixed
// merchant category enumeration.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{Categories: domain.MerchantCategories()}
}

// Width returns the transformed vector length: scaled numerics, one-hot
// category columns and the two boolean passthroughs.
func (p *Preprocessor) Width() int {
	return feature.NumNumeric + len(p.Categories) + 2
}

// Fit computes the scaling parameters from the training vectors.
func (p *Preprocessor) Fit(vectors []*feature.Vector) error {
	if len(vectors) == 0 {
		return fmt.Errorf("cannot fit preprocessor on empty input")
	}

	column := make([]float64, len(vectors))
	for f := 0; f < feature.NumNumeric; f++ {
		for i, v := range vectors {
			column[i] = v.Numeric[f]
		}
		sort.Float64s(column)

		p.Medians[f] = percentile(column, 0.50)
		iqr := percentile(column, 0.75) - percentile(column, 0.25)
		if iqr == 0 {
			// Constant feature; leave values centered but unscaled.
			iqr = 1
		}
		p.Scales[f] = iqr
	}

	p.Fitted = true
	return nil
}

// Transform maps a feature vector into the model input space using the
// fitted state. Unknown merchant categories produce an all-zero one-hot
// block: new categories appear in production data, so they degrade to a
// neutral encoding instead of failing.
func (p *Preprocessor) Transform(v *feature.Vector) ([]float64, error) {
	if !p.Fitted {
		return nil, fmt.Errorf("preprocessor is not fitted")
	}

	out := make([]float64, 0, p.Width())
	for f := 0; f < feature.NumNumeric; f++ {
		out = append(out, (v.Numeric[f]-p.Medians[f])/p.Scales[f])
	}
	for _, c := range p.Categories {
		if v.Category == c {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	out = append(out, boolToFloat(v.IsNight), boolToFloat(v.IsWeekend))
	return out, nil
}

// TransformAll transforms a batch of vectors.
func (p *Preprocessor) TransformAll(vectors []*feature.Vector) ([][]float64, error) {
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		row, err := p.Transform(v)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// percentile returns the linearly interpolated q-th percentile of a
// sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
