package rules

import (
	"context"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}
	return engine
}

func firedReasons(results []domain.RuleResult) []string {
	var reasons []string
	for _, r := range results {
		if r.Fired {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}

func TestBuiltinRulesLoad(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	if got := engine.RulesCount(); got != 9 {
		t.Errorf("expected 9 builtin rules, got %d", got)
	}
}

func TestHighRiskTransaction(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	// Large amount, far from home, frequent, high-risk merchant. The
	// distance band at exactly 100 fires the 50-100 rule, not the >100
	// rule, and frequency 10 fires the 5-10 band, not the >10 rule.
	tx := &domain.Transaction{
		Amount:           5000,
		DistanceFromHome: 100,
		TimeOfDay:        12,
		Frequency24h:     10,
		MerchantCategory: domain.CategoryOnline,
	}

	results, sum := engine.EvaluateAll(context.Background(), tx)
	if len(results) != 9 {
		t.Fatalf("expected 9 results, got %d", len(results))
	}
	if math.Abs(sum-0.75) > 1e-9 {
		t.Errorf("expected point sum 0.75, got %v", sum)
	}

	want := map[string]bool{
		"High transaction amount (>$1000)":                 true,
		"Transaction moderately far from home (>50 miles)": true,
		"High transaction frequency (>5 in 24h)":           true,
		"High-risk merchant category: Online":              true,
	}
	reasons := firedReasons(results)
	if len(reasons) != len(want) {
		t.Fatalf("expected %d fired rules, got %d: %v", len(want), len(reasons), reasons)
	}
	for _, reason := range reasons {
		if !want[reason] {
			t.Errorf("unexpected reason %q", reason)
		}
	}
}

func TestDistanceOverHundred(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	tx := &domain.Transaction{
		Amount:           5000,
		DistanceFromHome: 101,
		TimeOfDay:        12,
		Frequency24h:     10,
		MerchantCategory: domain.CategoryOnline,
	}

	_, sum := engine.EvaluateAll(context.Background(), tx)
	if math.Abs(sum-0.85) > 1e-9 {
		t.Errorf("expected point sum 0.85, got %v", sum)
	}
}

func TestLowRiskTransaction(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	tx := &domain.Transaction{
		Amount:           50,
		DistanceFromHome: 5,
		TimeOfDay:        14,
		Frequency24h:     1,
		MerchantCategory: domain.CategoryRetail,
	}

	results, sum := engine.EvaluateAll(context.Background(), tx)
	if sum != 0 {
		t.Errorf("expected zero points, got %v", sum)
	}
	for _, r := range results {
		if r.Fired {
			t.Errorf("rule %s should not fire", r.RuleID)
		}
	}
}

func TestAmountBandBoundaries(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	tests := []struct {
		amount float64
		want   float64
	}{
		{500, 0},
		{500.01, 0.15},
		{1000, 0.15},
		{1000.01, 0.30},
	}

	for _, tt := range tests {
		tx := &domain.Transaction{
			Amount:           tt.amount,
			DistanceFromHome: 5,
			TimeOfDay:        14,
			Frequency24h:     1,
			MerchantCategory: domain.CategoryRetail,
		}
		_, sum := engine.EvaluateAll(context.Background(), tx)
		if math.Abs(sum-tt.want) > 1e-9 {
			t.Errorf("amount %v: expected %v points, got %v", tt.amount, tt.want, sum)
		}
	}
}

func TestFrequencyBandBoundaries(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	tests := []struct {
		frequency float64
		want      float64
	}{
		{5, 0},
		{6, 0.15},
		{10, 0.15},
		{11, 0.30},
		{15, 0.30},
	}

	for _, tt := range tests {
		tx := &domain.Transaction{
			Amount:           50,
			DistanceFromHome: 5,
			TimeOfDay:        14,
			Frequency24h:     tt.frequency,
			MerchantCategory: domain.CategoryRetail,
		}
		_, sum := engine.EvaluateAll(context.Background(), tx)
		if math.Abs(sum-tt.want) > 1e-9 {
			t.Errorf("frequency %v: expected %v points, got %v", tt.frequency, tt.want, sum)
		}
	}
}

func TestUnusualTimeBoundaries(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	tests := []struct {
		hour  float64
		fires bool
	}{
		{5.99, true},
		{6, false},
		{22, false},
		{22.01, true},
	}

	for _, tt := range tests {
		tx := &domain.Transaction{
			Amount:           50,
			DistanceFromHome: 5,
			TimeOfDay:        tt.hour,
			Frequency24h:     1,
			MerchantCategory: domain.CategoryRetail,
		}
		_, sum := engine.EvaluateAll(context.Background(), tx)
		fired := sum > 0
		if fired != tt.fires {
			t.Errorf("hour %v: fired=%v, want %v", tt.hour, fired, tt.fires)
		}
	}
}

func TestUnknownMerchantCategory(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	tx := &domain.Transaction{
		Amount:           50,
		DistanceFromHome: 5,
		TimeOfDay:        14,
		Frequency24h:     1,
		MerchantCategory: domain.MerchantCategory("Crypto"),
	}

	_, sum := engine.EvaluateAll(context.Background(), tx)
	if sum != 0 {
		t.Errorf("unknown category should fire no merchant rule, got %v points", sum)
	}
}

func TestMerchantReasonExpansion(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	tx := &domain.Transaction{
		Amount:           50,
		DistanceFromHome: 5,
		TimeOfDay:        14,
		Frequency24h:     1,
		MerchantCategory: domain.CategoryTravel,
	}

	results, _ := engine.EvaluateAll(context.Background(), tx)
	reasons := firedReasons(results)
	if len(reasons) != 1 || reasons[0] != "High-risk merchant category: Travel" {
		t.Errorf("expected expanded merchant reason, got %v", reasons)
	}
}

func TestValidateRuleRejectsBadExpression(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	err := engine.ValidateRule(&domain.RuleConfig{
		ID:         "bad",
		Expression: `amount >`,
	})
	if err == nil {
		t.Error("expected compile error for malformed expression")
	}

	err = engine.ValidateRule(&domain.RuleConfig{
		ID:         "non-bool",
		Expression: `amount + 1.0`,
	})
	if err == nil {
		t.Error("expected error for non-boolean expression")
	}
}

func TestReloadRulesReplacesTable(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	custom := []*domain.RuleConfig{
		{
			ID:         "only-rule",
			Expression: `amount > 0.0`,
			Points:     0.5,
			Reason:     "any amount",
			Order:      1,
			Enabled:    true,
		},
	}
	if err := engine.ReloadRules(custom); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := engine.RulesCount(); got != 1 {
		t.Errorf("expected 1 rule after reload, got %d", got)
	}

	tx := &domain.Transaction{Amount: 1, MerchantCategory: domain.CategoryRetail, TimeOfDay: 12}
	_, sum := engine.EvaluateAll(context.Background(), tx)
	if sum != 0.5 {
		t.Errorf("expected 0.5 points from reloaded rule, got %v", sum)
	}
}

func TestEvaluationOrderIsDeterministic(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	loaded := engine.GetLoadedRules()
	for i := 1; i < len(loaded); i++ {
		if loaded[i-1].Order >= loaded[i].Order {
			t.Errorf("rules out of order: %s (%d) before %s (%d)",
				loaded[i-1].ID, loaded[i-1].Order, loaded[i].ID, loaded[i].Order)
		}
	}
}

func TestDisabledRulesSkipped(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	configs := BuiltinRules()
	for _, cfg := range configs {
		cfg.Enabled = false
	}
	if err := engine.LoadRules(configs); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := engine.RulesCount(); got != 0 {
		t.Errorf("expected 0 rules loaded, got %d", got)
	}
}
