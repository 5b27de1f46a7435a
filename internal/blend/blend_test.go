package blend

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func defaultBlender() *Blender {
	return NewBlender(domain.ScoringConfig{
		ModelWeight:   0.7,
		RuleWeight:    0.3,
		CapRulePoints: true,
	})
}

func TestBlendWeightedCombination(t *testing.T) {
	b := defaultBlender()

	a := b.Blend(&Input{
		TxID:        "tx-1",
		Probability: 0.5,
		RulePoints:  0.4,
		StartTime:   time.Now(),
	})

	want := 0.7*0.5 + 0.3*0.4
	if math.Abs(a.FinalScore-want) > 1e-9 {
		t.Errorf("expected final score %v, got %v", want, a.FinalScore)
	}
}

func TestBlendCapsRulePoints(t *testing.T) {
	b := defaultBlender()

	a := b.Blend(&Input{
		TxID:        "tx-1",
		Probability: 0.9,
		RulePoints:  1.45,
		StartTime:   time.Now(),
	})

	if a.RulePoints != 1.0 {
		t.Errorf("expected rule points capped at 1.0, got %v", a.RulePoints)
	}
	want := 0.7*0.9 + 0.3*1.0
	if math.Abs(a.FinalScore-want) > 1e-9 {
		t.Errorf("expected final score %v, got %v", want, a.FinalScore)
	}
	if a.FinalScore > 1.0 {
		t.Errorf("final score must not exceed 1.0, got %v", a.FinalScore)
	}
}

func TestBlendTiers(t *testing.T) {
	b := defaultBlender()

	cases := []struct {
		name   string
		prob   float64
		points float64
		tier   domain.RiskTier
	}{
		{"low", 0.1, 0.0, domain.TierLow},
		{"boundary low", 0.4, 0.4, domain.TierLow}, // 0.28+0.12 = 0.40, not strictly above
		{"medium", 0.6, 0.3, domain.TierMedium},
		{"boundary medium", 0.7, 0.7, domain.TierMedium}, // exactly 0.70
		{"high", 0.9, 0.8, domain.TierHigh},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			a := b.Blend(&Input{
				Probability: tt.prob,
				RulePoints:  tt.points,
				StartTime:   time.Now(),
			})
			if a.Tier != tt.tier {
				t.Errorf("score %v: expected tier %s, got %s", a.FinalScore, tt.tier, a.Tier)
			}
		})
	}
}

func TestBlendRiskFactors(t *testing.T) {
	b := defaultBlender()

	results := []domain.RuleResult{
		{RuleID: "high-amount", Fired: true, Points: 0.30, Reason: "High transaction amount (>$1000)"},
		{RuleID: "moderate-amount", Fired: false},
		{RuleID: "unusual-time", Fired: true, Points: 0.20, Reason: "Unusual transaction time (outside 6 AM - 10 PM)"},
	}

	a := b.Blend(&Input{
		Probability: 0.5,
		RulePoints:  0.5,
		RuleResults: results,
		StartTime:   time.Now(),
	})

	if len(a.RiskFactors) != 2 {
		t.Fatalf("expected 2 risk factors, got %d: %v", len(a.RiskFactors), a.RiskFactors)
	}
	if a.RiskFactors[0] != "High transaction amount (>$1000)" {
		t.Errorf("risk factors must preserve rule order, got %v", a.RiskFactors)
	}
	if a.Metadata.RulesFired != 2 {
		t.Errorf("expected 2 rules fired in metadata, got %d", a.Metadata.RulesFired)
	}
}

func TestBlendMetadata(t *testing.T) {
	b := defaultBlender()

	a := b.Blend(&Input{
		TxID:         "tx-42",
		TraceID:      "trace-42",
		Probability:  0.2,
		ModelVersion: "rf-100-d10-s42",
		StartTime:    time.Now().Add(-10 * time.Millisecond),
	})

	if a.ID == "" {
		t.Error("assessment must get a generated ID")
	}
	if a.TxID != "tx-42" {
		t.Errorf("expected tx ID tx-42, got %s", a.TxID)
	}
	if a.Metadata.TraceID != "trace-42" {
		t.Errorf("expected trace ID propagated, got %s", a.Metadata.TraceID)
	}
	if a.Metadata.ModelVersion != "rf-100-d10-s42" {
		t.Errorf("expected model version propagated, got %s", a.Metadata.ModelVersion)
	}
	if a.Metadata.EngineVersion != EngineVersion {
		t.Errorf("expected engine version %s, got %s", EngineVersion, a.Metadata.EngineVersion)
	}
	if a.Metadata.TotalMs < 10 {
		t.Errorf("expected total ms >= 10, got %d", a.Metadata.TotalMs)
	}
}

func TestShouldAlert(t *testing.T) {
	if !ShouldAlert(&domain.RiskAssessment{Tier: domain.TierHigh}) {
		t.Error("high tier should alert")
	}
	if ShouldAlert(&domain.RiskAssessment{Tier: domain.TierMedium}) {
		t.Error("medium tier should not alert")
	}
	if ShouldAlert(&domain.RiskAssessment{Tier: domain.TierLow}) {
		t.Error("low tier should not alert")
	}
}
