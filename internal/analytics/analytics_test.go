package analytics

import (
	"math"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/dataset"
)

const sampleCSV = `Time,V1,Amount,Class,Merchant_Category
0,-1.0,100.0,0,Retail
3600,0.5,200.0,0,Online
7200,2.0,50.0,1,Travel
90000,-0.2,400.0,0,Gas
93600,1.5,900.0,1,Online
`

func testAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	ds, err := dataset.Read(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return NewAnalyzer(ds)
}

func TestAmountDistribution(t *testing.T) {
	a := testAnalyzer(t)
	h := a.AmountDistribution()

	if len(h.BinEdges) != AmountBins+1 {
		t.Fatalf("expected %d bin edges, got %d", AmountBins+1, len(h.BinEdges))
	}
	if h.BinEdges[0] != 50 || math.Abs(h.BinEdges[AmountBins]-900) > 1e-9 {
		t.Errorf("bin edges should span [50, 900], got [%g, %g]", h.BinEdges[0], h.BinEdges[AmountBins])
	}

	legit, fraud := 0, 0
	for i := range h.LegitCount {
		legit += h.LegitCount[i]
		fraud += h.FraudCount[i]
	}
	if legit != 3 || fraud != 2 {
		t.Errorf("expected 3 legit / 2 fraud counted, got %d/%d", legit, fraud)
	}

	// The max amount lands in the last bin, not past it.
	if h.FraudCount[AmountBins-1] != 1 {
		t.Errorf("expected max-amount fraud row in the last bin, got %d", h.FraudCount[AmountBins-1])
	}
}

func TestTimeOfDayPattern(t *testing.T) {
	a := testAnalyzer(t)
	buckets := a.TimeOfDayPattern()

	if len(buckets) != 24 {
		t.Fatalf("expected 24 hour buckets, got %d", len(buckets))
	}

	// Time of day wraps at 86400, so 90000s lands in hour 1 and 93600s
	// in hour 2 alongside the early rows.
	if buckets[0].Total != 1 {
		t.Errorf("hour 0 total = %d, want 1", buckets[0].Total)
	}
	if buckets[1].Total != 2 {
		t.Errorf("hour 1 total = %d, want 2", buckets[1].Total)
	}
	if buckets[2].Total != 2 {
		t.Errorf("hour 2 total = %d, want 2", buckets[2].Total)
	}
	if got := buckets[2].FraudRate; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("hour 2 fraud rate = %g, want 1.0", got)
	}
	if got := buckets[2].MeanAmount; math.Abs(got-475.0) > 1e-9 {
		t.Errorf("hour 2 mean amount = %g, want 475", got)
	}

	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	if total != 5 {
		t.Errorf("bucket totals should sum to 5, got %d", total)
	}
}

func TestDistanceSeries(t *testing.T) {
	a := testAnalyzer(t)

	points := a.DistanceSeries(0)
	if len(points) != 5 {
		t.Fatalf("expected every row with no limit, got %d", len(points))
	}
	if math.Abs(points[0].Distance-50.0) > 1e-9 {
		t.Errorf("point 0 distance = %g, want 50", points[0].Distance)
	}
	if !points[2].Fraud {
		t.Error("point 2 should carry the fraud label")
	}

	limited := a.DistanceSeries(2)
	if len(limited) > 3 {
		t.Errorf("limit 2 should stride the set down, got %d points", len(limited))
	}
}

func TestFraudByDay(t *testing.T) {
	a := testAnalyzer(t)
	days := a.FraudByDay()

	// Elapsed 0-7200 is day one; 90000+ crosses into day two.
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Date >= days[1].Date {
		t.Errorf("days must be chronological: %s before %s", days[0].Date, days[1].Date)
	}
	if days[0].Total != 3 || days[0].FraudCount != 1 {
		t.Errorf("day 1: got total=%d fraud=%d, want 3/1", days[0].Total, days[0].FraudCount)
	}
	if days[1].Total != 2 || days[1].FraudCount != 1 {
		t.Errorf("day 2: got total=%d fraud=%d, want 2/1", days[1].Total, days[1].FraudCount)
	}
}

func TestSummarize(t *testing.T) {
	a := testAnalyzer(t)
	s := a.Summarize()

	if s.Total != 5 || s.FraudCount != 2 {
		t.Errorf("summary counts: got %d/%d, want 5/2", s.Total, s.FraudCount)
	}
	if math.Abs(s.FraudRate-0.4) > 1e-9 {
		t.Errorf("fraud rate = %g, want 0.4", s.FraudRate)
	}
	if s.AmountMean <= 0 || s.AmountStd <= 0 {
		t.Errorf("amount stats should be positive, got mean=%g std=%g", s.AmountMean, s.AmountStd)
	}
}
