// Package rules provides the CEL-Go based heuristic rule engine.
//
// Rules are additive and auditable: each one is a boolean CEL expression
// over the raw transaction, paired with a fixed point value and a reason
// string. They are evaluated in a fixed order so the explanation list is
// deterministic, independently of the statistical model.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine compiles and evaluates the heuristic rule table.
type Engine struct {
	mu      sync.RWMutex
	env     *cel.Env
	rules   map[string]*CompiledRule
	ordered []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a rule engine with the transaction variables bound.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("distance", cel.DoubleType),
		cel.Variable("time_of_day", cel.DoubleType),
		cel.Variable("frequency", cel.DoubleType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("is_night", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:   env,
		rules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[cfg.ID] = compiled
	e.reorder()
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones. Enables
// hot-reloading from the repository.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = newRules
	e.reorder()
	return nil
}

// EvaluateAll evaluates every loaded rule against the transaction, in
// rule order, and returns the per-rule results plus the additive point
// sum. An expression error marks its rule as errored and the evaluation
// continues; heuristics must never take down a scoring request.
func (e *Engine) EvaluateAll(ctx context.Context, tx *domain.Transaction) ([]domain.RuleResult, float64) {
	e.mu.RLock()
	ordered := e.ordered
	e.mu.RUnlock()

	if len(ordered) == 0 {
		return nil, 0
	}

	activation := map[string]any{
		"amount":      tx.Amount,
		"distance":    tx.DistanceFromHome,
		"time_of_day": tx.TimeOfDay,
		"frequency":   tx.Frequency24h,
		"merchant":    string(tx.MerchantCategory),
		"is_night":    tx.TimeOfDay < 6 || tx.TimeOfDay > 22,
	}

	results := make([]domain.RuleResult, 0, len(ordered))
	var sum float64

	for _, rule := range ordered {
		result := domain.RuleResult{RuleID: rule.Config.ID}

		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			result.Err = fmt.Sprintf("evaluation error: %v", err)
			results = append(results, result)
			continue
		}

		fired, ok := out.(types.Bool)
		if !ok {
			result.Err = fmt.Sprintf("expression returned %T, want bool", out)
			results = append(results, result)
			continue
		}

		if bool(fired) {
			result.Fired = true
			result.Points = rule.Config.Points
			result.Reason = expandReason(rule.Config.Reason, tx)
			sum += rule.Config.Points
		}
		results = append(results, result)
	}

	return results, sum
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// GetLoadedRules returns the loaded rule configurations in evaluation
// order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.RuleConfig, len(e.ordered))
	for i, r := range e.ordered {
		out[i] = r.Config
	}
	return out
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[string]*CompiledRule)
	e.ordered = nil
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

// reorder rebuilds the evaluation order. Callers hold e.mu.
func (e *Engine) reorder() {
	ordered := make([]*CompiledRule, 0, len(e.rules))
	for _, r := range e.rules {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].Config, ordered[j].Config
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	e.ordered = ordered
}

// expandReason substitutes the {merchant} placeholder so category rules
// can name the category that fired them.
func expandReason(reason string, tx *domain.Transaction) string {
	return strings.ReplaceAll(reason, "{merchant}", string(tx.MerchantCategory))
}
