package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/blend"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// assessmentCacheTTL bounds how long an identical request can be served
// from cache.
const assessmentCacheTTL = 10 * time.Minute

// distanceSeriesLimit caps the distance-vs-amount sample size per request.
const distanceSeriesLimit = 2000

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	manager  *model.Manager
	blender  *blend.Blender
	deriver  *feature.Deriver
	analyzer *analytics.Analyzer
	velocity *velocity.Service

	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cacheImpl domain.Cache, bus domain.EventBus, engine *rules.Engine, manager *model.Manager, blender *blend.Blender, deriver *feature.Deriver, analyzer *analytics.Analyzer, scoring domain.ScoringConfig, version string) *Handler {
	window := time.Duration(scoring.VelocityWindowSecs) * time.Second
	return &Handler{
		repo:     repo,
		cache:    cacheImpl,
		bus:      bus,
		engine:   engine,
		manager:  manager,
		blender:  blender,
		deriver:  deriver,
		analyzer: analyzer,
		velocity: velocity.NewService(repo, cacheImpl, window),
		version:  version,
	}
}

// Score handles POST /score requests: validate, derive features, run the
// classifier and the rule table, blend, persist, publish.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	tx := req.ToTransaction()
	tx.ID = uuid.New().String()

	// When the caller omits frequency, derive it from the card velocity
	// service: the count of prior transactions in the trailing window.
	if req.Frequency24h == nil && tx.CardID != "" {
		freq, err := h.velocity.Observe(ctx, tx.CardID)
		if err != nil {
			slog.Warn("velocity unavailable", "card_id", tx.CardID, "error", err)
		} else {
			tx.Frequency24h = freq
		}
	}

	// Identical inputs always produce the identical assessment, so serve
	// repeats from cache.
	fingerprint := cache.Fingerprint(tx)
	if h.cache != nil {
		if cached, err := h.cache.GetAssessment(ctx, fingerprint); err == nil && cached != nil {
			cached.TxID = tx.ID
			cached.Metadata.Cached = true
			cached.Metadata.TraceID = traceID
			writeJSON(w, http.StatusOK, cached.ToResponse())
			return
		}
	}

	featureStart := time.Now()
	vec, err := h.deriver.FromTransaction(tx)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	featureMs := time.Since(featureStart).Milliseconds()

	modelStart := time.Now()
	pipeline, err := h.manager.Ensure(ctx)
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	prob, err := pipeline.PredictProba(vec)
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	modelMs := time.Since(modelStart).Milliseconds()

	rulesStart := time.Now()
	ruleResults, rulePoints := h.engine.EvaluateAll(ctx, tx)
	rulesMs := time.Since(rulesStart).Milliseconds()

	assessment := h.blender.Blend(&blend.Input{
		TxID:         tx.ID,
		TraceID:      traceID,
		Probability:  prob,
		RulePoints:   rulePoints,
		RuleResults:  ruleResults,
		ModelVersion: pipeline.Version,
		StartTime:    start,
		FeatureMs:    featureMs,
		ModelMs:      modelMs,
		RulesMs:      rulesMs,
	})

	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
		if err := h.repo.SaveAssessment(ctx, assessment); err != nil {
			slog.Error("failed to save assessment", "assessment_id", assessment.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetAssessment(ctx, fingerprint, assessment, assessmentCacheTTL); err != nil {
			slog.Warn("failed to cache assessment", "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(&worker.AssessmentEvent{
			Assessment: assessment,
		})
		if err := h.bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil {
			slog.Error("failed to publish assessment event", "assessment_id", assessment.ID, "error", err)
		}
	}

	slog.Info("transaction scored",
		"tx_id", tx.ID,
		"final_score", assessment.FinalScore,
		"probability", assessment.Probability,
		"rule_points", assessment.RulePoints,
		"tier", assessment.Tier,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, assessment.ToResponse())
}

// writeModelError maps model lifecycle errors to HTTP statuses.
func (h *Handler) writeModelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrModelTraining):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "training in progress",
			"error":  "model is training, retry shortly",
		})
	case errors.Is(err, domain.ErrModelUnavailable):
		slog.Error("model unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "model unavailable",
		})
	default:
		slog.Error("scoring failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to score traffic. The model
// does not have to be trained yet; the first score request triggers that.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
		"model": string(h.manager.Status().State),
	})
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assessmentID := chi.URLParam(r, "id")

	if assessmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get assessment", "id", assessmentID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, txID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get transaction", "id", txID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetModel returns the model lifecycle status and evaluation report.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// TrainModel forces a synchronous retrain from the historical dataset.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.Retrain(r.Context())
	if err != nil {
		h.writeModelError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": h.manager.Status(),
		"report": report,
	})
}

// ListRules returns all loaded rules from the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Points      float64 `json:"points"`
	Reason      string  `json:"reason"`
	Order       int     `json:"order"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule validates, loads and persists a custom rule.
// After saving, call POST /rules/reload to re-sync from the database.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Points < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "points must be non-negative",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0",
		Expression:  req.Expression,
		Points:      req.Points,
		Reason:      req.Reason,
		Order:       req.Order,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": ruleConfig,
	})
}

// ReloadRules reloads the rule table: the builtin rules plus any stored
// in the database. This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	configs := rules.BuiltinRules()
	if h.repo != nil {
		dbRules, err := h.repo.ListRuleConfigs(ctx)
		if err != nil {
			slog.Error("failed to list rules from database", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load rules from database",
			})
			return
		}
		configs = append(configs, dbRules...)
	}

	if err := h.engine.ReloadRules(configs); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

// AnalyticsSummary returns headline dataset statistics.
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		h.writeAnalyticsUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.Summarize())
}

// AnalyticsAmounts returns the amount-distribution histogram.
func (h *Handler) AnalyticsAmounts(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		h.writeAnalyticsUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.AmountDistribution())
}

// AnalyticsTimeOfDay returns the hourly transaction pattern.
func (h *Handler) AnalyticsTimeOfDay(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		h.writeAnalyticsUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.TimeOfDayPattern())
}

// AnalyticsDistance returns the distance-vs-amount sample series.
func (h *Handler) AnalyticsDistance(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		h.writeAnalyticsUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.DistanceSeries(distanceSeriesLimit))
}

// AnalyticsFraudDaily returns daily fraud counts.
func (h *Handler) AnalyticsFraudDaily(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		h.writeAnalyticsUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.FraudByDay())
}

func (h *Handler) writeAnalyticsUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error": "historical dataset not loaded",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
