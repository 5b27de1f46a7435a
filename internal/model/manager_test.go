package model

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
)

func smallTx() *domain.Transaction {
	return &domain.Transaction{
		Amount:           30,
		DistanceFromHome: 2,
		TimeOfDay:        12,
		Frequency24h:     1,
		MerchantCategory: domain.CategoryRetail,
	}
}

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()

	var b strings.Builder
	b.WriteString("Time,V1,Amount,Class,Merchant_Category\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "%d,0.1,%d,0,Retail\n", i*3600, 20+i)
	}
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "%d,-4.0,%d,1,Online\n", i*3600+100, 2500+i*10)
	}

	ds, err := dataset.Read(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return ds
}

func TestManagerTrainsOnFirstEnsure(t *testing.T) {
	cfg := testConfig()
	cfg.ArtifactPath = filepath.Join(t.TempDir(), "model.gob")

	m := NewManager(cfg, testDataset(t), feature.NewDeriver(100, 50))

	if got := m.Status().State; got != StateUntrained {
		t.Fatalf("initial state = %s, want untrained", got)
	}

	p, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if p == nil {
		t.Fatal("ensure returned nil pipeline")
	}

	st := m.Status()
	if st.State != StateReady {
		t.Errorf("state = %s, want ready", st.State)
	}
	if st.Report == nil {
		t.Error("training should produce an evaluation report")
	}

	// Second call returns the same fitted pipeline without retraining.
	p2, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if p2 != p {
		t.Error("second ensure must return the shared pipeline")
	}
}

func TestManagerLoadsPersistedArtifact(t *testing.T) {
	cfg := testConfig()
	cfg.ArtifactPath = filepath.Join(t.TempDir(), "model.gob")
	ds := testDataset(t)
	deriver := feature.NewDeriver(100, 50)

	first := NewManager(cfg, ds, deriver)
	trained, err := first.Ensure(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	second := NewManager(cfg, ds, deriver)
	loaded, err := second.Ensure(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Version != trained.Version {
		t.Errorf("loaded version %s, want %s", loaded.Version, trained.Version)
	}
	// A load leaves no fresh evaluation report.
	if second.Status().Report != nil {
		t.Error("loading an artifact should not produce a training report")
	}

	probe, _ := deriver.FromTransaction(smallTx())
	a, _ := trained.PredictProba(probe)
	b, _ := loaded.PredictProba(probe)
	if a != b {
		t.Errorf("persisted pipeline changed probability: %g vs %g", a, b)
	}
}

func TestManagerRetrain(t *testing.T) {
	cfg := testConfig()
	cfg.ArtifactPath = filepath.Join(t.TempDir(), "model.gob")

	m := NewManager(cfg, testDataset(t), feature.NewDeriver(100, 50))
	if _, err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	report, err := m.Retrain(context.Background())
	if err != nil {
		t.Fatalf("retrain: %v", err)
	}
	if report == nil || report.TrainSize == 0 {
		t.Error("retrain should produce a fresh report")
	}
}

func TestManagerFailsWithoutDataset(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, nil, feature.NewDeriver(100, 50))

	if _, err := m.Ensure(context.Background()); err == nil {
		t.Fatal("expected failure without a dataset")
	}
	if got := m.Status().State; got != StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
}
