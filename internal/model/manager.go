package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
)

// State describes the manager's pipeline lifecycle.
type State string

const (
	StateUntrained State = "untrained"
	StateTraining  State = "training"
	StateReady     State = "ready"
	StateFailed    State = "failed"
)

// Manager owns the train-or-load decision. It is the single acquisition
// point for the fitted pipeline: at most one caller trains at a time, and
// everyone else sees a distinct training-in-progress state instead of
// blocking behind it. Once ready, the pipeline is immutable and shared.
type Manager struct {
	cfg     domain.ModelConfig
	ds      *dataset.Dataset
	deriver *feature.Deriver

	mu       sync.Mutex
	state    State
	pipeline *Pipeline
	report   *Report
	lastErr  error
}

// NewManager creates a manager over the historical dataset.
func NewManager(cfg domain.ModelConfig, ds *dataset.Dataset, deriver *feature.Deriver) *Manager {
	return &Manager{
		cfg:     cfg,
		ds:      ds,
		deriver: deriver,
		state:   StateUntrained,
	}
}

// Ensure returns the fitted pipeline, loading the persisted artifact or
// training synchronously when none exists. The first caller pays the
// training cost; concurrent callers get ErrModelTraining immediately.
func (m *Manager) Ensure(ctx context.Context) (*Pipeline, error) {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		p := m.pipeline
		m.mu.Unlock()
		return p, nil
	case StateTraining:
		m.mu.Unlock()
		return nil, domain.ErrModelTraining
	}
	m.state = StateTraining
	m.mu.Unlock()

	p, report, err := m.loadOrTrain(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	m.state = StateReady
	m.pipeline = p
	m.report = report
	m.lastErr = nil
	return p, nil
}

// Retrain discards the current pipeline and trains from the dataset,
// persisting a fresh artifact. Concurrent calls are rejected the same way
// Ensure rejects them.
func (m *Manager) Retrain(ctx context.Context) (*Report, error) {
	m.mu.Lock()
	if m.state == StateTraining {
		m.mu.Unlock()
		return nil, domain.ErrModelTraining
	}
	m.state = StateTraining
	m.mu.Unlock()

	p, report, err := m.train(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	m.state = StateReady
	m.pipeline = p
	m.report = report
	m.lastErr = nil
	return report, nil
}

// Status reports the current lifecycle state.
type Status struct {
	State   State   `json:"state"`
	Version string  `json:"version,omitempty"`
	Report  *Report `json:"report,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Status returns the manager state for the model endpoint.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{State: m.state, Report: m.report}
	if m.pipeline != nil {
		s.Version = m.pipeline.Version
	}
	if m.lastErr != nil {
		s.Error = m.lastErr.Error()
	}
	return s
}

func (m *Manager) loadOrTrain(ctx context.Context) (*Pipeline, *Report, error) {
	if m.cfg.ArtifactPath != "" {
		p, err := Load(m.cfg.ArtifactPath)
		if err == nil {
			slog.Info("loaded persisted model", "path", m.cfg.ArtifactPath, "version", p.Version)
			return p, nil, nil
		}
		slog.Warn("no usable model artifact, training", "path", m.cfg.ArtifactPath, "error", err)
	}
	return m.train(ctx)
}

func (m *Manager) train(ctx context.Context) (*Pipeline, *Report, error) {
	if m.ds == nil {
		return nil, nil, errors.New("no historical dataset available")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	vectors, labels := m.ds.Features(m.deriver)

	p, report, err := Train(vectors, labels, m.cfg)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("model trained",
		"records", len(vectors),
		"train_size", report.TrainSize,
		"test_size", report.TestSize,
		"precision", report.Precision,
		"recall", report.Recall,
		"f1", report.F1,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if m.cfg.ArtifactPath != "" {
		if err := p.Save(m.cfg.ArtifactPath); err != nil {
			// Training succeeded; persistence is best effort.
			slog.Warn("failed to persist model artifact", "path", m.cfg.ArtifactPath, "error", err)
		}
	}

	return p, report, nil
}
