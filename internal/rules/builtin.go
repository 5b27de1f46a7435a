package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// BuiltinRules returns the default heuristic rule table. Amount,
// distance and frequency bands are mutually exclusive so at most one
// rule per band fires. All comparisons are strict on the upper
// thresholds.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "high-amount",
			Name:        "High Transaction Amount",
			Description: "Flags transactions over $1000",
			Version:     "1.0",
			Expression:  `amount > 1000.0`,
			Points:      0.30,
			Reason:      "High transaction amount (>$1000)",
			Order:       10,
			Enabled:     true,
		},
		{
			ID:          "moderate-amount",
			Name:        "Moderate Transaction Amount",
			Description: "Flags transactions between $500 and $1000",
			Version:     "1.0",
			Expression:  `amount > 500.0 && amount <= 1000.0`,
			Points:      0.15,
			Reason:      "Moderate transaction amount (>$500)",
			Order:       20,
			Enabled:     true,
		},
		{
			ID:          "far-from-home",
			Name:        "Far From Home",
			Description: "Flags transactions over 100 miles from home",
			Version:     "1.0",
			Expression:  `distance > 100.0`,
			Points:      0.20,
			Reason:      "Transaction far from home (>100 miles)",
			Order:       30,
			Enabled:     true,
		},
		{
			ID:          "moderately-far",
			Name:        "Moderately Far From Home",
			Description: "Flags transactions between 50 and 100 miles from home",
			Version:     "1.0",
			Expression:  `distance > 50.0 && distance <= 100.0`,
			Points:      0.10,
			Reason:      "Transaction moderately far from home (>50 miles)",
			Order:       40,
			Enabled:     true,
		},
		{
			ID:          "unusual-time",
			Name:        "Unusual Transaction Time",
			Description: "Flags transactions outside 6 AM - 10 PM",
			Version:     "1.0",
			Expression:  `time_of_day < 6.0 || time_of_day > 22.0`,
			Points:      0.20,
			Reason:      "Unusual transaction time (outside 6 AM - 10 PM)",
			Order:       50,
			Enabled:     true,
		},
		{
			ID:          "very-high-frequency",
			Name:        "Very High Transaction Frequency",
			Description: "Flags cards with more than 10 transactions in 24h",
			Version:     "1.0",
			Expression:  `frequency > 10.0`,
			Points:      0.30,
			Reason:      "Very high transaction frequency (>10 in 24h)",
			Order:       60,
			Enabled:     true,
		},
		{
			ID:          "high-frequency",
			Name:        "High Transaction Frequency",
			Description: "Flags cards with 6-10 transactions in 24h",
			Version:     "1.0",
			Expression:  `frequency > 5.0 && frequency <= 10.0`,
			Points:      0.15,
			Reason:      "High transaction frequency (>5 in 24h)",
			Order:       70,
			Enabled:     true,
		},
		{
			ID:          "high-risk-merchant",
			Name:        "High-Risk Merchant Category",
			Description: "Flags Online and Travel merchants",
			Version:     "1.0",
			Expression:  `merchant in ['Online', 'Travel']`,
			Points:      0.20,
			Reason:      "High-risk merchant category: {merchant}",
			Order:       80,
			Enabled:     true,
		},
		{
			ID:          "medium-risk-merchant",
			Name:        "Medium-Risk Merchant Category",
			Description: "Flags Entertainment merchants",
			Version:     "1.0",
			Expression:  `merchant == 'Entertainment'`,
			Points:      0.10,
			Reason:      "Medium-risk merchant category: {merchant}",
			Order:       90,
			Enabled:     true,
		},
	}
}
