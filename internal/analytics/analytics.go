// Package analytics computes descriptive projections of the historical
// transaction set. Everything here is read-only over an immutable
// dataset, so none of it needs locking.
package analytics

import (
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/dataset"
)

// AmountBins is the number of histogram bins for the amount distribution.
const AmountBins = 50

// Analyzer serves descriptive views over a loaded dataset.
type Analyzer struct {
	ds *dataset.Dataset
}

// NewAnalyzer wraps a loaded dataset.
func NewAnalyzer(ds *dataset.Dataset) *Analyzer {
	return &Analyzer{ds: ds}
}

// AmountHistogram is the amount distribution split by fraud label.
type AmountHistogram struct {
	BinEdges   []float64 `json:"bin_edges"`
	LegitCount []int     `json:"legit_count"`
	FraudCount []int     `json:"fraud_count"`
}

// AmountDistribution bins transaction amounts into equal-width bins,
// counting legitimate and fraudulent rows separately.
func (a *Analyzer) AmountDistribution() *AmountHistogram {
	records := a.ds.Records()
	h := &AmountHistogram{
		BinEdges:   make([]float64, AmountBins+1),
		LegitCount: make([]int, AmountBins),
		FraudCount: make([]int, AmountBins),
	}
	if len(records) == 0 {
		return h
	}

	lo, hi := records[0].Amount, records[0].Amount
	for _, r := range records {
		if r.Amount < lo {
			lo = r.Amount
		}
		if r.Amount > hi {
			hi = r.Amount
		}
	}
	width := (hi - lo) / AmountBins
	if width == 0 {
		width = 1
	}
	for i := range h.BinEdges {
		h.BinEdges[i] = lo + float64(i)*width
	}

	for _, r := range records {
		bin := int((r.Amount - lo) / width)
		if bin >= AmountBins {
			bin = AmountBins - 1
		}
		if r.Fraud {
			h.FraudCount[bin]++
		} else {
			h.LegitCount[bin]++
		}
	}
	return h
}

// HourBucket aggregates transactions falling into one hour of the day.
type HourBucket struct {
	Hour       int     `json:"hour"`
	Total      int     `json:"total"`
	FraudCount int     `json:"fraud_count"`
	FraudRate  float64 `json:"fraud_rate"`
	MeanAmount float64 `json:"mean_amount"`
}

// TimeOfDayPattern aggregates volume, fraud rate and mean amount per
// hour of day.
func (a *Analyzer) TimeOfDayPattern() []HourBucket {
	buckets := make([]HourBucket, 24)
	sums := make([]float64, 24)
	for i := range buckets {
		buckets[i].Hour = i
	}

	for _, r := range a.ds.Records() {
		hour := int(math.Floor(r.TimeOfDay))
		if hour < 0 {
			hour = 0
		}
		if hour > 23 {
			hour = 23
		}
		buckets[hour].Total++
		sums[hour] += r.Amount
		if r.Fraud {
			buckets[hour].FraudCount++
		}
	}

	for i := range buckets {
		if buckets[i].Total > 0 {
			buckets[i].FraudRate = float64(buckets[i].FraudCount) / float64(buckets[i].Total)
			buckets[i].MeanAmount = sums[i] / float64(buckets[i].Total)
		}
	}
	return buckets
}

// DistancePoint is one sample of the distance-vs-amount series.
type DistancePoint struct {
	Distance float64 `json:"distance"`
	Amount   float64 `json:"amount"`
	Fraud    bool    `json:"fraud"`
}

// DistanceSeries returns up to limit distance-vs-amount samples,
// evenly strided across the set so both ends are represented. A
// limit <= 0 returns every row.
func (a *Analyzer) DistanceSeries(limit int) []DistancePoint {
	records := a.ds.Records()
	stride := 1
	if limit > 0 && len(records) > limit {
		stride = len(records) / limit
	}

	points := make([]DistancePoint, 0, len(records)/stride+1)
	for i := 0; i < len(records); i += stride {
		r := records[i]
		points = append(points, DistancePoint{
			Distance: r.DistanceFromHome,
			Amount:   r.Amount,
			Fraud:    r.Fraud,
		})
	}
	return points
}

// DailyFraud is the fraud count for one calendar day of the dataset.
type DailyFraud struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	FraudCount int    `json:"fraud_count"`
}

// FraudByDay counts total and fraudulent transactions per calendar day,
// sorted chronologically.
func (a *Analyzer) FraudByDay() []DailyFraud {
	type agg struct {
		total int
		fraud int
	}
	byDay := make(map[string]*agg)
	var order []string

	for _, r := range a.ds.Records() {
		day := r.Timestamp.UTC().Format("2006-01-02")
		entry, ok := byDay[day]
		if !ok {
			entry = &agg{}
			byDay[day] = entry
			order = append(order, day)
		}
		entry.total++
		if r.Fraud {
			entry.fraud++
		}
	}

	// Records are loaded in time order, but days can interleave when the
	// source file is unsorted.
	sort.Strings(order)

	out := make([]DailyFraud, 0, len(order))
	for _, day := range order {
		out = append(out, DailyFraud{
			Date:       day,
			Total:      byDay[day].total,
			FraudCount: byDay[day].fraud,
		})
	}
	return out
}

// Summary is the headline view of the dataset.
type Summary struct {
	Total      int     `json:"total"`
	FraudCount int     `json:"fraud_count"`
	FraudRate  float64 `json:"fraud_rate"`
	AmountMean float64 `json:"amount_mean"`
	AmountStd  float64 `json:"amount_std"`
}

// Summarize returns headline counts and amount statistics.
func (a *Analyzer) Summarize() Summary {
	s := Summary{
		Total:      a.ds.Len(),
		FraudCount: a.ds.FraudCount(),
		AmountMean: a.ds.AmountMean,
		AmountStd:  a.ds.AmountStd,
	}
	if s.Total > 0 {
		s.FraudRate = float64(s.FraudCount) / float64(s.Total)
	}
	return s
}
