package feature

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestFromTransactionOrder(t *testing.T) {
	d := NewDeriver(100, 50)

	tx := &domain.Transaction{
		Amount:           250,
		DistanceFromHome: 30,
		TimeOfDay:        9,
		Frequency24h:     3,
		MerchantCategory: domain.CategoryRetail,
	}

	v, err := d.FromTransaction(tx)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	want := [NumNumeric]float64{
		IdxAmount:    250,
		IdxDistance:  30,
		IdxTimeOfDay: 9,
		IdxFrequency: 3,
		IdxVelocity:  250.0 / 10.0,
		IdxDeviation: (250.0 - 100.0) / 50.0,
	}
	for i, w := range want {
		if math.Abs(v.Numeric[i]-w) > 1e-9 {
			t.Errorf("numeric[%d] = %g, want %g", i, v.Numeric[i], w)
		}
	}
	if v.IsNight {
		t.Error("9am should not be night")
	}
	if v.IsWeekend {
		t.Error("live derivation must not set is_weekend")
	}
	if v.Category != domain.CategoryRetail {
		t.Errorf("category = %s, want Retail", v.Category)
	}
}

func TestVelocityAvoidsDivisionByZero(t *testing.T) {
	d := NewDeriver(100, 50)

	tx := &domain.Transaction{
		Amount:           100,
		TimeOfDay:        0, // midnight
		MerchantCategory: domain.CategoryGas,
	}

	v, err := d.FromTransaction(tx)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if v.Numeric[IdxVelocity] != 100 {
		t.Errorf("velocity = %g, want 100 (amount/(0+1))", v.Numeric[IdxVelocity])
	}
}

func TestIsNight(t *testing.T) {
	tests := []struct {
		hour float64
		want bool
	}{
		{0, true},
		{5.99, true},
		{6, false},
		{12, false},
		{22, false},
		{22.01, true},
		{23.5, true},
	}
	for _, tt := range tests {
		if got := IsNight(tt.hour); got != tt.want {
			t.Errorf("IsNight(%g) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestValidateRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		tx    domain.Transaction
		field string
	}{
		{"negative amount", domain.Transaction{Amount: -1, TimeOfDay: 12}, "amount"},
		{"negative distance", domain.Transaction{DistanceFromHome: -5, TimeOfDay: 12}, "distanceFromHome"},
		{"hour too large", domain.Transaction{TimeOfDay: 24}, "timeOfDay"},
		{"hour negative", domain.Transaction{TimeOfDay: -0.5}, "timeOfDay"},
		{"negative frequency", domain.Transaction{TimeOfDay: 12, Frequency24h: -1}, "frequency24h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.tx)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !domain.IsInvalidTransaction(err) {
				t.Fatalf("expected InvalidTransactionError, got %T", err)
			}
			ite := err.(*domain.InvalidTransactionError)
			if ite.Field != tt.field {
				t.Errorf("field = %s, want %s", ite.Field, tt.field)
			}
		})
	}
}

func TestBatchWeekendDerivation(t *testing.T) {
	rec := &domain.HistoricalRecord{
		Amount:           50,
		TimeOfDay:        10,
		ElapsedSeconds:   5, // 5 % 7 >= 5
		MerchantCategory: domain.CategoryOnline,
	}

	d := NewDeriver(100, 50)
	v := d.FromRecord(rec, 80, 40)

	if !v.IsWeekend {
		t.Error("elapsed 5 should derive weekend")
	}
	if got := v.Numeric[IdxDeviation]; math.Abs(got-(50.0-80.0)/40.0) > 1e-9 {
		t.Errorf("batch deviation uses dataset stats, got %g", got)
	}
	if got := v.Numeric[IdxVelocity]; math.Abs(got-50.0/6.0) > 1e-9 {
		t.Errorf("batch velocity uses elapsed seconds, got %g", got)
	}
}
