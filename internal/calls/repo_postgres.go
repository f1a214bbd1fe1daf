package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore implements Store over database/sql (pgx stdlib driver).
//
// The conditional-update rules (voicemail precedence, ended_at set-once) are
// expressed inside the UPDATE statements themselves so that concurrent,
// out-of-order callbacks cannot interleave between a read and a write.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

const callColumns = `id, call_id, agent_id, counterparty, direction, status, duration, COALESCE(recording_ref, ''), started_at, ended_at`

func (s *PostgresStore) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if err := validateNew(rec); err != nil {
		return CallRecord{}, err
	}
	status := rec.Status
	if status == "" {
		status = StatusInitiated
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO call_records (call_id, agent_id, counterparty, direction, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+callColumns,
		rec.CallID, rec.AgentID, rec.Counterparty, rec.Direction, status)

	out, err := scanCall(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return CallRecord{}, ErrDuplicate
		}
		return CallRecord{}, err
	}
	return out, nil
}

// updateSQL applies the shared conditional-update semantics. The agent scope
// clause is appended by callers.
const updateSQL = `
	UPDATE call_records
	SET status = CASE WHEN status = 'voicemail' THEN status ELSE COALESCE($1, status) END,
	    duration = COALESCE($2, duration),
	    ended_at = CASE
	        WHEN $1 IN ('completed','no-answer','busy','canceled','failed') AND ended_at IS NULL THEN NOW()
	        ELSE ended_at
	    END
	WHERE call_id = $3`

func (s *PostgresStore) Update(ctx context.Context, callID, agentID string, p Patch) (CallRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		updateSQL+` AND agent_id = $4 RETURNING `+callColumns,
		statusArg(p.Status), p.Duration, callID, agentID)
	return scanCall(row)
}

func (s *PostgresStore) UpdateByProvider(ctx context.Context, callID string, p Patch) (CallRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		updateSQL+` RETURNING `+callColumns,
		statusArg(p.Status), p.Duration, callID)
	return scanCall(row)
}

func (s *PostgresStore) SetDuration(ctx context.Context, callID string, seconds int) (CallRecord, error) {
	if seconds < 0 {
		seconds = 0
	}
	row := s.DB.QueryRowContext(ctx, `
		UPDATE call_records SET duration = $1
		WHERE call_id = $2
		RETURNING `+callColumns,
		seconds, callID)
	return scanCall(row)
}

func (s *PostgresStore) MarkVoicemail(ctx context.Context, callID string) (CallRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE call_records
		SET status = 'voicemail',
		    duration = 0,
		    ended_at = COALESCE(ended_at, NOW())
		WHERE call_id = $1
		RETURNING `+callColumns,
		callID)
	return scanCall(row)
}

func (s *PostgresStore) GetByCallID(ctx context.Context, callID string) (CallRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM call_records WHERE call_id = $1`, callID)
	return scanCall(row)
}

func (s *PostgresStore) ListForAgent(ctx context.Context, agentID string, direction Direction, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + callColumns + ` FROM call_records WHERE agent_id = $1`)
	args := []any{agentID}
	if direction != "" {
		args = append(args, direction)
		fmt.Fprintf(&b, ` AND direction = $%d`, len(args))
	}
	args = append(args, limit)
	fmt.Fprintf(&b, ` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	defer rows.Close()
	return collectCalls(rows)
}

func (s *PostgresStore) Delete(ctx context.Context, callID, agentID string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM call_records WHERE call_id = $1 AND agent_id = $2`, callID, agentID)
	if err != nil {
		return fmt.Errorf("calls: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompletedInMonth(ctx context.Context, agentID string, from, to time.Time) ([]CallRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+callColumns+` FROM call_records
		WHERE agent_id = $1 AND status = 'completed' AND started_at >= $2 AND started_at < $3`,
		agentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("calls: completed in month: %w", err)
	}
	defer rows.Close()
	return collectCalls(rows)
}

// statusArg converts the optional status to a driver-friendly value so the
// CASE/COALESCE expressions see NULL when no status was provided.
func statusArg(s *CallStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var rec CallRecord
	var endedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.CallID, &rec.AgentID, &rec.Counterparty,
		&rec.Direction, &rec.Status, &rec.DurationSeconds, &rec.RecordingRef,
		&rec.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: scan: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	return rec, nil
}

func collectCalls(rows *sql.Rows) ([]CallRecord, error) {
	var out []CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
