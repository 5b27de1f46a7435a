package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func testRepo(t *testing.T) domain.Repository {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "kestrel-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func publishEvent(t *testing.T, b domain.EventBus, evt *AssessmentEvent) {
	t.Helper()
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	if err := b.Publish(context.Background(), domain.TopicAssessmentCompleted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerPersistsAssessment(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	repo := testRepo(t)

	w := NewWorker(b, repo)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	evt := &AssessmentEvent{
		Assessment: &domain.RiskAssessment{
			ID:          "asm-001",
			TxID:        "tx-001",
			FinalScore:  0.35,
			Probability: 0.4,
			Tier:        domain.TierLow,
			Timestamp:   time.Now().UTC(),
		},
		Transaction: &domain.Transaction{
			ID:               "tx-001",
			Amount:           120,
			TimeOfDay:        10,
			MerchantCategory: domain.CategoryRetail,
			CreatedAt:        time.Now().UTC(),
		},
	}
	publishEvent(t, b, evt)

	waitFor(t, func() bool { return w.GetStats().Processed == 1 })

	stored, err := repo.GetAssessment(context.Background(), "asm-001")
	if err != nil {
		t.Fatalf("assessment not persisted: %v", err)
	}
	if stored.FinalScore != 0.35 {
		t.Errorf("expected final score 0.35, got %v", stored.FinalScore)
	}

	tx, err := repo.GetTransaction(context.Background(), "tx-001")
	if err != nil {
		t.Fatalf("transaction not persisted: %v", err)
	}
	if tx.Amount != 120 {
		t.Errorf("expected amount 120, got %v", tx.Amount)
	}
}

func TestWorkerAlertsOnHighTier(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	alerts := make(chan *domain.Message, 1)
	_, err := b.Subscribe(context.Background(), domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	w := NewWorker(b, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	publishEvent(t, b, &AssessmentEvent{
		Assessment: &domain.RiskAssessment{
			ID:         "asm-high",
			TxID:       "tx-high",
			FinalScore: 0.91,
			Tier:       domain.TierHigh,
			Timestamp:  time.Now().UTC(),
		},
	})

	select {
	case msg := <-alerts:
		var evt AssessmentEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			t.Fatalf("failed to parse alert: %v", err)
		}
		if evt.Assessment.ID != "asm-high" {
			t.Errorf("unexpected assessment in alert: %s", evt.Assessment.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert for high-tier assessment")
	}

	stats := w.GetStats()
	if stats.Alerts != 1 {
		t.Errorf("expected 1 alert counted, got %d", stats.Alerts)
	}
}

func TestWorkerNoAlertForLowTier(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	alerts := make(chan *domain.Message, 1)
	b.Subscribe(context.Background(), domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts <- msg
		return nil
	})

	w := NewWorker(b, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	publishEvent(t, b, &AssessmentEvent{
		Assessment: &domain.RiskAssessment{
			ID:   "asm-low",
			Tier: domain.TierLow,
		},
	})

	waitFor(t, func() bool { return w.GetStats().Processed == 1 })

	select {
	case <-alerts:
		t.Error("low-tier assessment must not alert")
	default:
	}
}

func TestWorkerStopHaltsProcessing(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	w := NewWorker(b, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	evt := &AssessmentEvent{
		Assessment: &domain.RiskAssessment{
			ID:         "asm-stop-001",
			TxID:       "tx-stop-001",
			FinalScore: 0.2,
			Tier:       domain.TierLow,
			Timestamp:  time.Now().UTC(),
		},
	}
	publishEvent(t, b, evt)
	waitFor(t, func() bool { return w.GetStats().Processed == 1 })

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", got)
	}

	// Give the bus dispatch goroutine time to observe the cancellation,
	// then verify later events are not delivered to the worker.
	time.Sleep(20 * time.Millisecond)
	publishEvent(t, b, evt)
	time.Sleep(50 * time.Millisecond)
	if got := w.GetStats().Processed; got != 1 {
		t.Errorf("expected 1 processed after stop, got %d", got)
	}
}

func TestWorkerIgnoresMalformedPayload(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	w := NewWorker(b, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	b.Publish(context.Background(), domain.TopicAssessmentCompleted, []byte("{not json"))

	// Malformed events are dropped without counting as processed.
	time.Sleep(50 * time.Millisecond)
	if got := w.GetStats().Processed; got != 0 {
		t.Errorf("expected 0 processed, got %d", got)
	}
}
