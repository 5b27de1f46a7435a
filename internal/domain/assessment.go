package domain

import (
	"time"
)

// RiskTier is the discrete risk bucket derived from the final score.
type RiskTier string

const (
	TierLow    RiskTier = "LOW"
	TierMedium RiskTier = "MEDIUM"
	TierHigh   RiskTier = "HIGH"
)

// Tier thresholds are exact cut points used for user-facing messaging:
// score > 0.7 is High, score > 0.4 is Medium, everything else is Low.
const (
	TierHighThreshold   = 0.7
	TierMediumThreshold = 0.4
)

// TierForScore maps a final blended score to its risk tier.
func TierForScore(score float64) RiskTier {
	switch {
	case score > TierHighThreshold:
		return TierHigh
	case score > TierMediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// RiskAssessment is the complete scoring result for one transaction.
type RiskAssessment struct {
	ID   string `json:"id"`
	TxID string `json:"txId"`

	// FinalScore is the blended score in [0, 1]:
	// 0.7 × model probability + 0.3 × capped rule-point sum.
	FinalScore float64 `json:"finalScore"`

	// Probability is the classifier's fraud probability in [0, 1].
	Probability float64 `json:"probability"`

	// RulePoints is the additive heuristic score before capping.
	RulePoints float64 `json:"rulePoints"`

	Tier RiskTier `json:"tier"`

	// RiskFactors lists the triggered rule explanations in fixed
	// evaluation order.
	RiskFactors []string `json:"riskFactors"`

	// RuleResults holds the per-rule detail backing RiskFactors.
	RuleResults []RuleResult `json:"ruleResults,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID       string `json:"traceId"`
	FeatureMs     int64  `json:"featureMs"`
	ModelMs       int64  `json:"modelMs"`
	RulesMs       int64  `json:"rulesMs"`
	TotalMs       int64  `json:"totalMs"`
	RulesFired    int    `json:"rulesFired"`
	ModelVersion  string `json:"modelVersion"`
	EngineVersion string `json:"engineVersion"`
	Cached        bool   `json:"cached,omitempty"`
}

// ScoreResponse is the API response for POST /score.
type ScoreResponse struct {
	AssessmentID string             `json:"assessmentId"`
	TxID         string             `json:"txId"`
	FinalScore   float64            `json:"finalScore"`
	Probability  float64            `json:"probability"`
	Tier         RiskTier           `json:"tier"`
	RiskFactors  []string           `json:"riskFactors,omitempty"`
	Metadata     AssessmentMetadata `json:"metadata"`
}

// ToResponse converts an assessment to its API representation.
func (a *RiskAssessment) ToResponse() *ScoreResponse {
	return &ScoreResponse{
		AssessmentID: a.ID,
		TxID:         a.TxID,
		FinalScore:   a.FinalScore,
		Probability:  a.Probability,
		Tier:         a.Tier,
		RiskFactors:  a.RiskFactors,
		Metadata:     a.Metadata,
	}
}
