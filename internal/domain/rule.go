package domain

// RuleConfig defines one heuristic risk rule. Rules are additive and
// independent of the statistical model: each one contributes a fixed point
// value when its CEL expression evaluates true.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL boolean expression over the transaction
	// variables (amount, distance, time_of_day, frequency, merchant).
	Expression string `json:"expression"`

	// Points is added to the rule-point sum when the expression fires.
	Points float64 `json:"points"`

	// Reason is the human-readable explanation appended when the rule
	// fires.
	Reason string `json:"reason"`

	// Order fixes the evaluation position so the reasons list is
	// deterministic. Lower runs first.
	Order int `json:"order"`

	Enabled bool `json:"enabled"`
}

// RuleResult is the outcome of evaluating one rule against a transaction.
type RuleResult struct {
	RuleID string  `json:"ruleId"`
	Fired  bool    `json:"fired"`
	Points float64 `json:"points"`
	Reason string  `json:"reason,omitempty"`

	// Err is set when the expression failed to evaluate. The rule is
	// treated as not fired; the request proceeds.
	Err string `json:"err,omitempty"`
}
