// Package feature derives the fixed feature vector consumed by the model
// pipeline from raw transactions and historical records.
package feature

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Numeric feature indices. The order is fixed: the scaler and the
// persisted model both depend on it.
const (
	IdxAmount = iota
	IdxDistance
	IdxTimeOfDay
	IdxFrequency
	IdxVelocity
	IdxDeviation
	NumNumeric
)

// NumericNames returns the numeric feature names in vector order.
func NumericNames() []string {
	return []string{
		"Transaction_Amount",
		"Distance_from_Home",
		"Time_of_Day",
		"Transaction_Frequency",
		"Transaction_Velocity",
		"Amount_Deviation",
	}
}

// Vector is the ordered feature set required by the model pipeline:
// six numerics, two booleans, and the merchant category.
type Vector struct {
	Numeric   [NumNumeric]float64
	IsNight   bool
	IsWeekend bool
	Category  domain.MerchantCategory
}

// Deriver turns raw transactions into feature vectors.
//
// Live single-transaction scoring uses fixed calibration constants for the
// amount z-score; batch derivation over the historical set uses the
// dataset's own mean and std, supplied per call.
type Deriver struct {
	// RefMean and RefStd calibrate the live amount deviation. They are
	// intentionally fixed constants, not recomputed from the request or
	// the historical distribution.
	RefMean float64
	RefStd  float64
}

// NewDeriver creates a deriver with the given live calibration constants.
func NewDeriver(refMean, refStd float64) *Deriver {
	if refStd == 0 {
		refStd = 1
	}
	return &Deriver{RefMean: refMean, RefStd: refStd}
}

// Validate rejects malformed numeric input before it can reach the model.
func Validate(tx *domain.Transaction) error {
	if tx.Amount < 0 {
		return &domain.InvalidTransactionError{Field: "amount", Reason: "must be non-negative"}
	}
	if tx.DistanceFromHome < 0 {
		return &domain.InvalidTransactionError{Field: "distanceFromHome", Reason: "must be non-negative"}
	}
	if tx.TimeOfDay < 0 || tx.TimeOfDay >= 24 {
		return &domain.InvalidTransactionError{
			Field:  "timeOfDay",
			Reason: fmt.Sprintf("must be in [0, 24), got %g", tx.TimeOfDay),
		}
	}
	if tx.Frequency24h < 0 {
		return &domain.InvalidTransactionError{Field: "frequency24h", Reason: "must be non-negative"}
	}
	return nil
}

// FromTransaction derives the live feature vector for a single submitted
// transaction.
//
// Is_Weekend is always false here: a live request carries no calendar
// context. Batch derivation computes it from elapsed time instead; the two
// paths are deliberately kept asymmetric.
func (d *Deriver) FromTransaction(tx *domain.Transaction) (*Vector, error) {
	if err := Validate(tx); err != nil {
		return nil, err
	}

	v := &Vector{Category: tx.MerchantCategory}
	v.Numeric[IdxAmount] = tx.Amount
	v.Numeric[IdxDistance] = tx.DistanceFromHome
	v.Numeric[IdxTimeOfDay] = tx.TimeOfDay
	v.Numeric[IdxFrequency] = tx.Frequency24h
	// +1 avoids division by zero at midnight.
	v.Numeric[IdxVelocity] = tx.Amount / (tx.TimeOfDay + 1)
	v.Numeric[IdxDeviation] = (tx.Amount - d.RefMean) / d.RefStd
	v.IsNight = IsNight(tx.TimeOfDay)
	v.IsWeekend = false
	return v, nil
}

// FromRecord derives the batch feature vector for one historical record.
// mean and std are the amount statistics computed once over the full
// historical set.
func (d *Deriver) FromRecord(rec *domain.HistoricalRecord, mean, std float64) *Vector {
	if std == 0 {
		std = 1
	}
	v := &Vector{Category: rec.MerchantCategory}
	v.Numeric[IdxAmount] = rec.Amount
	v.Numeric[IdxDistance] = rec.DistanceFromHome
	v.Numeric[IdxTimeOfDay] = rec.TimeOfDay
	v.Numeric[IdxFrequency] = rec.Frequency24h
	v.Numeric[IdxVelocity] = rec.Amount / (rec.ElapsedSeconds + 1)
	v.Numeric[IdxDeviation] = (rec.Amount - mean) / std
	v.IsNight = IsNight(rec.TimeOfDay)
	v.IsWeekend = IsWeekend(rec.ElapsedSeconds)
	return v
}

// IsNight reports whether an hour falls in the night window.
func IsNight(timeOfDay float64) bool {
	return timeOfDay < 6 || timeOfDay > 22
}

// IsWeekend derives a weekend flag from elapsed seconds via the modular
// arithmetic the historical dataset uses (day index 5 and 6 of a week
// starting Monday).
func IsWeekend(elapsedSeconds float64) bool {
	return int64(elapsedSeconds)%7 >= 5
}
