package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// unique_violation
const pqUniqueViolation = "23505"

// SQLStore implements Store on Postgres through database/sql and lib/pq
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLStore opens a Postgres connection for the given URL
func OpenSQLStore(ctx context.Context, databaseURL string) (*SQLStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSQLStore(db), nil
}

const schema = `
CREATE TABLE IF NOT EXISTS intents (
	id TEXT PRIMARY KEY,
	payment_token TEXT NOT NULL,
	payment_token_amount TEXT NOT NULL,
	rail_type TEXT NOT NULL,
	recipient_address TEXT NOT NULL,
	rail_amount TEXT NOT NULL,
	creator_address TEXT NOT NULL,
	chain_id INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	state TEXT NOT NULL,
	winning_solution_id TEXT,
	resolution_tx_hash TEXT,
	claimed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS solutions (
	id TEXT PRIMARY KEY,
	intent_id TEXT NOT NULL REFERENCES intents(id),
	solver_address TEXT NOT NULL,
	amount_wei TEXT NOT NULL,
	signature TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	commitment_tx_hash TEXT,
	settlement_tx_hash TEXT,
	resolution_tx_hash TEXT,
	payment_metadata JSONB
);

CREATE INDEX IF NOT EXISTS solutions_intent_id_idx ON solutions (intent_id);
CREATE INDEX IF NOT EXISTS intents_state_idx ON intents (state);
`

// Init creates the tables if they do not exist
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

const intentColumns = `id, payment_token, payment_token_amount, rail_type, recipient_address, rail_amount,
	creator_address, chain_id, created_at, state, winning_solution_id, resolution_tx_hash, claimed_at, updated_at`

const solutionColumns = `id, intent_id, solver_address, amount_wei, signature, created_at,
	commitment_tx_hash, settlement_tx_hash, resolution_tx_hash, payment_metadata`

type scanner interface {
	Scan(dest ...any) error
}

func scanIntent(row scanner) (models.Intent, error) {
	var (
		intent     models.Intent
		winnerID   sql.NullString
		resolution sql.NullString
		claimedAt  sql.NullTime
	)
	err := row.Scan(&intent.ID, &intent.PaymentToken, &intent.PaymentTokenAmount, &intent.RailType,
		&intent.RecipientAddress, &intent.RailAmount, &intent.CreatorAddress, &intent.ChainID,
		&intent.CreatedAt, &intent.State, &winnerID, &resolution, &claimedAt, &intent.UpdatedAt)
	if err != nil {
		return models.Intent{}, err
	}
	intent.WinningSolutionID = nullableString(winnerID)
	intent.ResolutionTxHash = nullableString(resolution)
	if claimedAt.Valid {
		t := claimedAt.Time
		intent.ClaimedAt = &t
	}
	return intent, nil
}

func scanSolution(row scanner) (models.Solution, error) {
	var (
		solution   models.Solution
		commitment sql.NullString
		settlement sql.NullString
		resolution sql.NullString
		metadata   sql.NullString
	)
	err := row.Scan(&solution.ID, &solution.IntentID, &solution.SolverAddress, &solution.AmountWei,
		&solution.Signature, &solution.CreatedAt, &commitment, &settlement, &resolution, &metadata)
	if err != nil {
		return models.Solution{}, err
	}
	solution.CommitmentTxHash = nullableString(commitment)
	solution.SettlementTxHash = nullableString(settlement)
	solution.ResolutionTxHash = nullableString(resolution)
	if metadata.Valid {
		decoded, err := models.DecodePaymentMetadata(metadata.String)
		if err != nil {
			return models.Solution{}, err
		}
		solution.PaymentMetadata = decoded
	}
	return solution, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isPQError(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func (s *SQLStore) CreateIntent(ctx context.Context, intent models.Intent) error {
	query := `
		INSERT INTO intents (id, payment_token, payment_token_amount, rail_type, recipient_address, rail_amount,
			creator_address, chain_id, created_at, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		intent.ID, intent.PaymentToken, intent.PaymentTokenAmount, string(intent.RailType), intent.RecipientAddress,
		intent.RailAmount, intent.CreatorAddress, intent.ChainID, intent.CreatedAt, string(intent.State), intent.UpdatedAt,
	)
	if isPQError(err, pqUniqueViolation) {
		return fmt.Errorf("intent %s already exists: %w", intent.ID, ErrInvalidInput)
	}
	return err
}

func (s *SQLStore) GetIntent(ctx context.Context, id string) (models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents WHERE id = $1`
	intent, err := scanIntent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Intent{}, ErrNotFound
	}
	return intent, err
}

func (s *SQLStore) ListIntents(ctx context.Context, filter IntentFilter) ([]models.Intent, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.State != "" {
		args = append(args, string(filter.State))
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.CreatorAddress != "" {
		args = append(args, filter.CreatorAddress)
		conditions = append(conditions, fmt.Sprintf("LOWER(creator_address) = LOWER($%d)", len(args)))
	}

	query := `SELECT ` + intentColumns + ` FROM intents`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]models.Intent, 0)
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) CreateSolution(ctx context.Context, solution models.Solution) error {
	query := `
		INSERT INTO solutions (id, intent_id, solver_address, amount_wei, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		solution.ID, solution.IntentID, solution.SolverAddress, solution.AmountWei, solution.Signature, solution.CreatedAt,
	)
	switch {
	case isPQError(err, pqForeignKeyViolation):
		return ErrNotFound
	case isPQError(err, pqUniqueViolation):
		return fmt.Errorf("solution %s already exists: %w", solution.ID, ErrInvalidInput)
	}
	return err
}

func (s *SQLStore) GetSolution(ctx context.Context, id string) (models.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE id = $1`
	solution, err := scanSolution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Solution{}, ErrNotFound
	}
	return solution, err
}

func (s *SQLStore) ListSolutions(ctx context.Context, intentID string) ([]models.Solution, error) {
	if _, err := s.GetIntent(ctx, intentID); err != nil {
		return nil, err
	}

	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE intent_id = $1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, intentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]models.Solution, 0)
	for rows.Next() {
		solution, err := scanSolution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, solution)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Transition runs the compare-and-swap in one database transaction. The
// UPDATE ... WHERE state = $from is the atomic check; the solution row is only
// touched once the intent row has been claimed by this transaction.
func (s *SQLStore) Transition(ctx context.Context, intentID string, from, to models.IntentState, effects Effects, at time.Time) (models.Intent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Intent{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if effects.WinningSolutionID != nil {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT intent_id FROM solutions WHERE id = $1`, *effects.WinningSolutionID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != intentID) {
			return models.Intent{}, ErrInvalidInput
		}
		if err != nil {
			return models.Intent{}, err
		}
	}

	var claimedAt any
	if effects.ClaimedAt != nil {
		claimedAt = *effects.ClaimedAt
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE intents
		SET state = $1,
			winning_solution_id = COALESCE(winning_solution_id, $2),
			resolution_tx_hash = COALESCE($3, resolution_tx_hash),
			claimed_at = COALESCE($4, claimed_at),
			updated_at = $5
		WHERE id = $6 AND state = $7 AND ($2::TEXT IS NULL OR winning_solution_id IS NULL)
	`, string(to), effects.WinningSolutionID, effects.ResolutionTxHash, claimedAt, at, intentID, string(from))
	if err != nil {
		return models.Intent{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return models.Intent{}, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT state FROM intents WHERE id = $1`, intentID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return models.Intent{}, ErrNotFound
		}
		if err != nil {
			return models.Intent{}, err
		}
		if models.IntentState(current) != from {
			return models.Intent{State: models.IntentState(current)}, ErrStaleTransition
		}
		return models.Intent{State: models.IntentState(current)}, ErrInvalidState
	}

	var metadata any
	if effects.PaymentMetadata != nil {
		encoded, err := effects.PaymentMetadata.Encode()
		if err != nil {
			return models.Intent{}, err
		}
		metadata = encoded
	}

	if effects.CommitmentTxHash != nil || effects.SettlementTxHash != nil || effects.ResolutionTxHash != nil || metadata != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE solutions
			SET commitment_tx_hash = COALESCE($1, commitment_tx_hash),
				settlement_tx_hash = COALESCE($2, settlement_tx_hash),
				resolution_tx_hash = COALESCE($3, resolution_tx_hash),
				payment_metadata = COALESCE($4::JSONB, payment_metadata)
			WHERE id = (SELECT winning_solution_id FROM intents WHERE id = $5)
		`, effects.CommitmentTxHash, effects.SettlementTxHash, effects.ResolutionTxHash, metadata, intentID)
		if err != nil {
			return models.Intent{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Intent{}, fmt.Errorf("failed to commit transition: %w", err)
	}
	return s.GetIntent(ctx, intentID)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Backend() string {
	return "postgres"
}
