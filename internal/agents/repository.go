package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("agents: not found")

// Repository abstracts agent persistence. Agents are created by provisioning;
// this service only reads them.
type Repository interface {
	GetByID(ctx context.Context, id string) (Agent, error)
	GetByEmail(ctx context.Context, email string) (Agent, error)

	// GetByDirectNumber resolves the agent owning a platform number.
	GetByDirectNumber(ctx context.Context, number string) (Agent, error)

	// ListActive returns all active agents, used for inbound ring-all routing.
	ListActive(ctx context.Context) ([]Agent, error)
}

// PostgresRepo implements Repository over database/sql (pgx stdlib driver).
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{DB: db} }

const agentColumns = `id, name, email, password_hash, COALESCE(direct_number, ''), is_active, created_at`

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Agent, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (r *PostgresRepo) GetByEmail(ctx context.Context, email string) (Agent, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE email = $1`, email)
	return scanAgent(row)
}

func (r *PostgresRepo) GetByDirectNumber(ctx context.Context, number string) (Agent, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE direct_number = $1`, number)
	return scanAgent(row)
}

func (r *PostgresRepo) ListActive(ctx context.Context) ([]Agent, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("agents: list active: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.DirectNumber, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("agents: scan: %w", err)
	}
	return a, nil
}
