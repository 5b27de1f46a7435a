// Package dataset loads the historical transaction set used for training
// and descriptive analytics. The set is loaded once and held read-only for
// the process lifetime.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
)

// epoch anchors record timestamps: elapsed seconds are offsets from here.
var epoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// Dataset is the immutable historical record set plus the reference
// statistics computed once over it.
type Dataset struct {
	records []*domain.HistoricalRecord

	// AmountMean and AmountStd are computed over the full set and used
	// for batch amount-deviation derivation.
	AmountMean float64
	AmountStd  float64
}

// Load reads a labelled transaction CSV. The expected columns are Time
// (elapsed seconds), V1 (anonymized signal used to derive distance),
// Amount and Class; a Merchant_Category column is used when present and
// synthesized deterministically when absent.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses the CSV from r. Exposed separately so tests can feed
// in-memory data.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"Time", "Amount", "Class"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("dataset missing required column %q", required)
		}
	}
	v1Idx, hasV1 := col["V1"]
	catIdx, hasCat := col["Merchant_Category"]

	categories := domain.MerchantCategories()

	var records []*domain.HistoricalRecord
	timeCounts := make(map[int64]float64)

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		elapsed, err := strconv.ParseFloat(row[col["Time"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad Time: %w", line, err)
		}
		amount, err := strconv.ParseFloat(row[col["Amount"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad Amount: %w", line, err)
		}
		class, err := strconv.Atoi(row[col["Class"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad Class: %w", line, err)
		}

		rec := &domain.HistoricalRecord{
			Amount:         amount,
			TimeOfDay:      math.Mod(elapsed, 86400) / 3600,
			ElapsedSeconds: elapsed,
			Fraud:          class == 1,
			Timestamp:      epoch.Add(time.Duration(elapsed * float64(time.Second))),
		}

		// Distance is scaled from the first anonymized signal when the
		// dataset carries no explicit location data.
		if hasV1 {
			v1, err := strconv.ParseFloat(row[v1Idx], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad V1: %w", line, err)
			}
			rec.DistanceFromHome = math.Abs(v1 * 50)
		}

		if hasCat {
			rec.MerchantCategory = domain.MerchantCategory(row[catIdx])
		} else {
			rec.MerchantCategory = categories[len(records)%len(categories)]
		}

		timeCounts[int64(elapsed)]++
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}

	// Frequency is the number of records sharing the same elapsed second.
	for _, rec := range records {
		rec.Frequency24h = timeCounts[int64(rec.ElapsedSeconds)]
	}

	ds := &Dataset{records: records}
	ds.AmountMean, ds.AmountStd = amountStats(records)
	return ds, nil
}

// Records returns the historical records. Callers must treat the slice and
// its elements as read-only.
func (d *Dataset) Records() []*domain.HistoricalRecord {
	return d.records
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// FraudCount returns the number of fraud-labelled records.
func (d *Dataset) FraudCount() int {
	n := 0
	for _, rec := range d.records {
		if rec.Fraud {
			n++
		}
	}
	return n
}

// Features derives the full batch feature matrix and label vector using
// the dataset's own amount statistics.
func (d *Dataset) Features(deriver *feature.Deriver) ([]*feature.Vector, []bool) {
	vectors := make([]*feature.Vector, len(d.records))
	labels := make([]bool, len(d.records))
	for i, rec := range d.records {
		vectors[i] = deriver.FromRecord(rec, d.AmountMean, d.AmountStd)
		labels[i] = rec.Fraud
	}
	return vectors, labels
}

// amountStats computes the mean and sample standard deviation of amounts.
func amountStats(records []*domain.HistoricalRecord) (mean, std float64) {
	n := float64(len(records))
	for _, rec := range records {
		mean += rec.Amount
	}
	mean /= n

	if len(records) < 2 {
		return mean, 1
	}
	var ss float64
	for _, rec := range records {
		d := rec.Amount - mean
		ss += d * d
	}
	std = math.Sqrt(ss / (n - 1))
	if std == 0 {
		std = 1
	}
	return mean, std
}
