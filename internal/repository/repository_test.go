package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := &domain.Transaction{
			ID:               "tx-001",
			Amount:           1250.00,
			DistanceFromHome: 120.5,
			TimeOfDay:        23.5,
			Frequency24h:     3,
			MerchantCategory: domain.CategoryOnline,
			CardID:           "card-001",
			CreatedAt:        time.Now().UTC(),
		}

		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != tx.ID {
			t.Errorf("expected ID %s, got %s", tx.ID, retrieved.ID)
		}
		if retrieved.Amount != tx.Amount {
			t.Errorf("expected Amount %.2f, got %.2f", tx.Amount, retrieved.Amount)
		}
		if retrieved.MerchantCategory != domain.CategoryOnline {
			t.Errorf("expected category Online, got %s", retrieved.MerchantCategory)
		}
	})

	t.Run("RequiresTransactionID", func(t *testing.T) {
		if err := repo.SaveTransaction(ctx, &domain.Transaction{}); err == nil {
			t.Error("expected error for empty transaction ID")
		}
	})

	t.Run("GetTransactionsByCard", func(t *testing.T) {
		tx2 := &domain.Transaction{
			ID:               "tx-002",
			Amount:           45.00,
			DistanceFromHome: 2.0,
			TimeOfDay:        14.0,
			Frequency24h:     4,
			MerchantCategory: domain.CategoryRetail,
			CardID:           "card-001",
			CreatedAt:        time.Now().UTC(),
		}

		if err := repo.SaveTransaction(ctx, tx2); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		since := time.Now().Add(-1 * time.Hour)
		transactions, err := repo.GetTransactionsByCard(ctx, "card-001", since)
		if err != nil {
			t.Fatalf("GetTransactionsByCard failed: %v", err)
		}

		if len(transactions) != 2 {
			t.Errorf("expected 2 transactions, got %d", len(transactions))
		}

		_, err = repo.GetTransactionsByCard(ctx, "", since)
		if err == nil {
			t.Error("expected error for empty cardID")
		}
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		a := &domain.RiskAssessment{
			ID:          "asm-001",
			TxID:        "tx-001",
			FinalScore:  0.78,
			Probability: 0.82,
			RulePoints:  0.70,
			Tier:        domain.TierHigh,
			RiskFactors: []string{"High transaction amount (>$1000)"},
			RuleResults: []domain.RuleResult{
				{RuleID: "high-amount", Fired: true, Points: 0.30, Reason: "High transaction amount (>$1000)"},
			},
			Timestamp: time.Now().UTC(),
			Metadata:  domain.AssessmentMetadata{TraceID: "trace-001", ModelVersion: "rf-100-d10-s42"},
		}

		if err := repo.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		retrieved, err := repo.GetAssessment(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}

		if retrieved.ID != a.ID {
			t.Errorf("expected ID %s, got %s", a.ID, retrieved.ID)
		}
		if retrieved.FinalScore != a.FinalScore {
			t.Errorf("expected FinalScore %.2f, got %.2f", a.FinalScore, retrieved.FinalScore)
		}
		if retrieved.Tier != domain.TierHigh {
			t.Errorf("expected tier HIGH, got %s", retrieved.Tier)
		}
		if len(retrieved.RiskFactors) != 1 {
			t.Errorf("expected 1 risk factor, got %d", len(retrieved.RiskFactors))
		}
		if retrieved.Metadata.ModelVersion != "rf-100-d10-s42" {
			t.Errorf("expected model version round-tripped, got %s", retrieved.Metadata.ModelVersion)
		}
	})

	t.Run("SaveAndListRuleConfigs", func(t *testing.T) {
		rule := &domain.RuleConfig{
			ID:          "custom-rule",
			Name:        "Custom Rule",
			Description: "test rule",
			Version:     "1.0",
			Expression:  `amount > 100.0`,
			Points:      0.25,
			Reason:      "custom reason",
			Order:       100,
			Enabled:     true,
		}

		if err := repo.SaveRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}

		retrieved, err := repo.GetRuleConfig(ctx, rule.ID)
		if err != nil {
			t.Fatalf("GetRuleConfig failed: %v", err)
		}
		if retrieved.Points != 0.25 || retrieved.Order != 100 {
			t.Errorf("rule fields not round-tripped: %+v", retrieved)
		}

		// Upsert the same (id, version) with new points.
		rule.Points = 0.35
		if err := repo.SaveRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveRuleConfig upsert failed: %v", err)
		}

		configs, err := repo.ListRuleConfigs(ctx)
		if err != nil {
			t.Fatalf("ListRuleConfigs failed: %v", err)
		}
		if len(configs) != 1 {
			t.Fatalf("expected 1 rule config, got %d", len(configs))
		}
		if configs[0].Points != 0.35 {
			t.Errorf("expected upserted points 0.35, got %v", configs[0].Points)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetAssessment(ctx, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetRuleConfig(ctx, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
