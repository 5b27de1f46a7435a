// Package worker provides async processing of completed assessments.
//
// The scoring path itself is synchronous so the caller gets the score in
// the response; persistence and alerting happen off that path, driven by
// assessment-completed events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/blend"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker consumes assessment events from the EventBus, persists them and
// raises alerts for high-tier assessments.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	mu        sync.Mutex
	processed int64
	alerts    int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the assessment-completed topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAssessmentCompleted, w.handleAssessment)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("assessment worker started",
		"topic", domain.TopicAssessmentCompleted,
	)
	return nil
}

// AssessmentEvent is the payload published for each completed assessment.
type AssessmentEvent struct {
	Assessment  *domain.RiskAssessment `json:"assessment"`
	Transaction *domain.Transaction    `json:"transaction"`
}

// handleAssessment persists the assessment and transaction, then raises
// an alert for high-risk results.
func (w *Worker) handleAssessment(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var evt AssessmentEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		slog.Error("failed to parse assessment event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if evt.Assessment == nil {
		slog.Error("assessment event without assessment", "message_id", msg.ID)
		return nil
	}

	if w.repo != nil {
		if evt.Transaction != nil {
			if err := w.repo.SaveTransaction(ctx, evt.Transaction); err != nil {
				slog.Error("failed to save transaction",
					"tx_id", evt.Transaction.ID,
					"error", err,
				)
			}
		}
		if err := w.repo.SaveAssessment(ctx, evt.Assessment); err != nil {
			slog.Error("failed to save assessment",
				"assessment_id", evt.Assessment.ID,
				"error", err,
			)
		}
	}

	alerted := false
	if blend.ShouldAlert(evt.Assessment) {
		if err := w.bus.Publish(ctx, domain.TopicAlert, msg.Payload); err != nil {
			slog.Error("failed to publish alert",
				"assessment_id", evt.Assessment.ID,
				"error", err,
			)
		} else {
			alerted = true
		}
	}

	w.mu.Lock()
	w.processed++
	if alerted {
		w.alerts++
	}
	w.mu.Unlock()

	slog.Info("assessment processed",
		"assessment_id", evt.Assessment.ID,
		"tx_id", evt.Assessment.TxID,
		"tier", evt.Assessment.Tier,
		"final_score", evt.Assessment.FinalScore,
		"alerted", alerted,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker. Handlers run on the bus's dispatch
// goroutines, so unsubscribing is what stops message delivery.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("assessment worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int   `json:"subscriptionCount"`
	Processed         int64 `json:"processed"`
	Alerts            int64 `json:"alerts"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Processed:         w.processed,
		Alerts:            w.alerts,
	}
}
