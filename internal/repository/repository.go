// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a scored transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, amount, distance_from_home, time_of_day,
			frequency_24h, merchant_category, card_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Amount, tx.DistanceFromHome, tx.TimeOfDay,
		tx.Frequency24h, string(tx.MerchantCategory), tx.CardID, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, amount, distance_from_home, time_of_day,
			   frequency_24h, merchant_category, card_id, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var category string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Amount, &tx.DistanceFromHome, &tx.TimeOfDay,
		&tx.Frequency24h, &category, &tx.CardID, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.MerchantCategory = domain.MerchantCategory(category)
	return &tx, nil
}

// GetTransactionsByCard retrieves a card's transactions since a cutoff,
// newest first. Backs the 24h frequency window.
func (r *SQLRepository) GetTransactionsByCard(ctx context.Context, cardID string, since time.Time) ([]*domain.Transaction, error) {
	if cardID == "" {
		return nil, fmt.Errorf("%w: cardID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, amount, distance_from_home, time_of_day,
			   frequency_24h, merchant_category, card_id, created_at
		FROM transactions
		WHERE card_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), cardID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var category string

		if err := rows.Scan(
			&tx.ID, &tx.Amount, &tx.DistanceFromHome, &tx.TimeOfDay,
			&tx.Frequency24h, &category, &tx.CardID, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.MerchantCategory = domain.MerchantCategory(category)
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveAssessment stores a risk assessment.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	if a.ID == "" {
		return fmt.Errorf("%w: assessment ID is required", ErrInvalidInput)
	}

	riskFactors, _ := json.Marshal(a.RiskFactors)
	ruleResults, _ := json.Marshal(a.RuleResults)
	metadata, _ := json.Marshal(a.Metadata)

	query := `
		INSERT INTO assessments (
			id, tx_id, final_score, probability, rule_points, tier,
			risk_factors, rule_results, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.TxID, a.FinalScore, a.Probability, a.RulePoints, string(a.Tier),
		string(riskFactors), string(ruleResults), a.Timestamp, string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, assessmentID string) (*domain.RiskAssessment, error) {
	query := `
		SELECT id, tx_id, final_score, probability, rule_points, tier,
			   risk_factors, rule_results, timestamp, metadata
		FROM assessments
		WHERE id = ?
	`

	var a domain.RiskAssessment
	var tier, riskFactors, ruleResults, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), assessmentID).Scan(
		&a.ID, &a.TxID, &a.FinalScore, &a.Probability, &a.RulePoints, &tier,
		&riskFactors, &ruleResults, &a.Timestamp, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Tier = domain.RiskTier(tier)
	json.Unmarshal([]byte(riskFactors), &a.RiskFactors)
	json.Unmarshal([]byte(ruleResults), &a.RuleResults)
	json.Unmarshal([]byte(metadata), &a.Metadata)

	return &a, nil
}

// SaveRuleConfig stores a rule configuration, upserting on (id, version).
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, points, reason,
			rule_order, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			points = excluded.points,
			reason = excluded.reason,
			rule_order = excluded.rule_order,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Points, rule.Reason,
		rule.Order, enabled, now, now,
	)
	return err
}

// GetRuleConfig retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, points, reason, rule_order, enabled
		FROM rule_configs
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
		&cfg.Expression, &cfg.Points, &cfg.Reason, &cfg.Order, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// ListRuleConfigs retrieves all enabled rule configurations in
// evaluation order.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, points, reason, rule_order, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY rule_order, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
			&cfg.Expression, &cfg.Points, &cfg.Reason, &cfg.Order, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
