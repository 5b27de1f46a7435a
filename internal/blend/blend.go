// Package blend combines the model probability and the heuristic rule
// points into a single risk assessment.
package blend

import (
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// EngineVersion identifies the scoring engine in assessment metadata.
const EngineVersion = "kestrel-1.0"

// Blender produces the final risk score as a weighted combination of
// the model probability and the capped rule point sum.
type Blender struct {
	// ModelWeight multiplies the fraud probability.
	ModelWeight float64

	// RuleWeight multiplies the rule point sum.
	RuleWeight float64

	// CapRulePoints clamps the rule point sum to 1.0 before blending
	// so the final score stays in [0, 1].
	CapRulePoints bool
}

// NewBlender creates a blender from scoring configuration.
func NewBlender(cfg domain.ScoringConfig) *Blender {
	return &Blender{
		ModelWeight:   cfg.ModelWeight,
		RuleWeight:    cfg.RuleWeight,
		CapRulePoints: cfg.CapRulePoints,
	}
}

// Input carries everything needed to assemble an assessment.
type Input struct {
	TxID         string
	TraceID      string
	Probability  float64
	RulePoints   float64
	RuleResults  []domain.RuleResult
	ModelVersion string
	StartTime    time.Time
	FeatureMs    int64
	ModelMs      int64
	RulesMs      int64
}

// Blend computes the final score and builds the full assessment with
// risk factors, tier, and timing metadata.
func (b *Blender) Blend(input *Input) *domain.RiskAssessment {
	points := input.RulePoints
	if b.CapRulePoints && points > 1.0 {
		points = 1.0
	}

	final := b.ModelWeight*input.Probability + b.RuleWeight*points
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}

	assessment := &domain.RiskAssessment{
		ID:          uuid.New().String(),
		TxID:        input.TxID,
		FinalScore:  final,
		Probability: input.Probability,
		RulePoints:  points,
		Tier:        domain.TierForScore(final),
		RiskFactors: riskFactors(input.RuleResults),
		RuleResults: input.RuleResults,
		Timestamp:   time.Now().UTC(),
	}

	fired := 0
	for _, r := range input.RuleResults {
		if r.Fired {
			fired++
		}
	}

	assessment.Metadata = domain.AssessmentMetadata{
		TraceID:       input.TraceID,
		FeatureMs:     input.FeatureMs,
		ModelMs:       input.ModelMs,
		RulesMs:       input.RulesMs,
		TotalMs:       time.Since(input.StartTime).Milliseconds(),
		RulesFired:    fired,
		ModelVersion:  input.ModelVersion,
		EngineVersion: EngineVersion,
	}

	return assessment
}

// ShouldAlert reports whether the assessment warrants an alert event.
func ShouldAlert(a *domain.RiskAssessment) bool {
	return a.Tier == domain.TierHigh
}

// riskFactors extracts the reasons of fired rules, in rule order.
func riskFactors(results []domain.RuleResult) []string {
	var reasons []string
	for _, r := range results {
		if r.Fired && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}
