package domain

import (
	"fmt"
	"time"
)

// MerchantCategory is the fixed enumeration of merchant categories the
// scoring pipeline understands. Categories outside this set are accepted
// but encode as "unknown" (all-zero one-hot) rather than failing.
type MerchantCategory string

const (
	CategoryRetail        MerchantCategory = "Retail"
	CategoryRestaurant    MerchantCategory = "Restaurant"
	CategoryTravel        MerchantCategory = "Travel"
	CategoryEntertainment MerchantCategory = "Entertainment"
	CategoryGas           MerchantCategory = "Gas"
	CategoryOnline        MerchantCategory = "Online"
	CategoryOther         MerchantCategory = "Other"
)

// MerchantCategories lists all known categories in encoding order.
// The order is fixed: the one-hot encoder and the persisted model both
// depend on it.
func MerchantCategories() []MerchantCategory {
	return []MerchantCategory{
		CategoryRetail,
		CategoryRestaurant,
		CategoryTravel,
		CategoryEntertainment,
		CategoryGas,
		CategoryOnline,
		CategoryOther,
	}
}

// Known reports whether c belongs to the fixed enumeration.
func (c MerchantCategory) Known() bool {
	for _, k := range MerchantCategories() {
		if c == k {
			return true
		}
	}
	return false
}

// Transaction is a single card transaction submitted for risk scoring.
type Transaction struct {
	ID string `json:"id"`

	// Amount is the monetary value in dollars.
	Amount float64 `json:"amount"`

	// DistanceFromHome is the distance in miles between the transaction
	// location and the cardholder's home.
	DistanceFromHome float64 `json:"distanceFromHome"`

	// TimeOfDay is the hour of day in 24h format, [0, 24).
	TimeOfDay float64 `json:"timeOfDay"`

	// Frequency24h is the number of prior transactions on the card in the
	// trailing 24 hours.
	Frequency24h float64 `json:"frequency24h"`

	MerchantCategory MerchantCategory `json:"merchantCategory"`

	// CardID optionally identifies the card so velocity counters can be
	// maintained when the caller does not supply Frequency24h.
	CardID string `json:"cardId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ScoreRequest is the API request payload for POST /score.
type ScoreRequest struct {
	Amount           float64  `json:"amount"`
	DistanceFromHome float64  `json:"distanceFromHome"`
	TimeOfDay        float64  `json:"timeOfDay"`
	Frequency24h     *float64 `json:"frequency24h,omitempty"`
	MerchantCategory string   `json:"merchantCategory"`
	CardID           string   `json:"cardId,omitempty"`
}

// Validate checks the request fields against the input contract.
// Malformed numeric input is rejected before it can reach the model.
func (r *ScoreRequest) Validate() error {
	if r.Amount < 0 {
		return &InvalidTransactionError{Field: "amount", Reason: "must be non-negative"}
	}
	if r.DistanceFromHome < 0 {
		return &InvalidTransactionError{Field: "distanceFromHome", Reason: "must be non-negative"}
	}
	if r.TimeOfDay < 0 || r.TimeOfDay >= 24 {
		return &InvalidTransactionError{
			Field:  "timeOfDay",
			Reason: fmt.Sprintf("must be in [0, 24), got %g", r.TimeOfDay),
		}
	}
	if r.Frequency24h != nil && *r.Frequency24h < 0 {
		return &InvalidTransactionError{Field: "frequency24h", Reason: "must be non-negative"}
	}
	if r.MerchantCategory == "" {
		return &InvalidTransactionError{Field: "merchantCategory", Reason: "is required"}
	}
	return nil
}

// ToTransaction converts a validated request to a Transaction. Frequency
// defaults to zero when omitted; the handler may fill it from the velocity
// counter instead.
func (r *ScoreRequest) ToTransaction() *Transaction {
	freq := 0.0
	if r.Frequency24h != nil {
		freq = *r.Frequency24h
	}
	return &Transaction{
		Amount:           r.Amount,
		DistanceFromHome: r.DistanceFromHome,
		TimeOfDay:        r.TimeOfDay,
		Frequency24h:     freq,
		MerchantCategory: MerchantCategory(r.MerchantCategory),
		CardID:           r.CardID,
		CreatedAt:        time.Now().UTC(),
	}
}

// HistoricalRecord is one row of the historical dataset: the transaction
// features plus the ground-truth fraud label. The set is loaded once at
// startup and never mutated.
type HistoricalRecord struct {
	Amount           float64
	DistanceFromHome float64
	TimeOfDay        float64
	Frequency24h     float64
	MerchantCategory MerchantCategory

	// ElapsedSeconds is the elapsed time since the start of the dataset,
	// used for velocity and weekend derivation in batch mode.
	ElapsedSeconds float64

	// Fraud is the ground-truth label.
	Fraud bool

	Timestamp time.Time
}
