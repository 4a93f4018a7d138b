package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/models"
)

const clientColumns = `id, provider_id, name, email, phone, default_price, completed_sessions, joined_at, last_session_at`

// NormalizeEmail returns the form used as the client identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (db *DB) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	return getClient(ctx, db, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
}

func (db *DB) ListClients(ctx context.Context, providerID int64) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE provider_id = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}
	return clients, nil
}

func (tx *Tx) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	return getClient(ctx, tx.tx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
}

func (tx *Tx) GetClientByEmail(ctx context.Context, providerID int64, email string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE provider_id = ? AND email = ?`
	return getClient(ctx, tx.tx, query, providerID, NormalizeEmail(email))
}

// CreateClient inserts a new client. A duplicate (provider, email) yields domain.ErrClientExists.
func (tx *Tx) CreateClient(ctx context.Context, client *models.Client) error {
	query := `INSERT INTO clients (provider_id, name, email, phone, default_price, completed_sessions, joined_at)
              VALUES (?, ?, ?, ?, ?, 0, ?)`
	joined := client.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}
	client.Email = NormalizeEmail(client.Email)

	result, err := tx.tx.ExecContext(ctx, query,
		client.ProviderID,
		client.Name,
		client.Email,
		client.Phone,
		nullFloat(client.DefaultPrice),
		unix(joined),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrClientExists
		}
		return fmt.Errorf("failed to create client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	client.ID = id
	client.JoinedAt = fromUnix(unix(joined))
	client.CompletedSessions = 0
	return nil
}

// AddCompletedSessions applies delta to the counter without letting it go
// negative. lastSessionAt is written only when non-nil.
func (tx *Tx) AddCompletedSessions(ctx context.Context, clientID int64, delta int, lastSessionAt *time.Time) error {
	query := `UPDATE clients SET completed_sessions = MAX(completed_sessions + ?, 0),
                last_session_at = COALESCE(?, last_session_at)
              WHERE id = ?`
	res, err := tx.tx.ExecContext(ctx, query, delta, nullUnix(lastSessionAt), clientID)
	if err != nil {
		return fmt.Errorf("failed to update completed sessions: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// CompletedCounts returns each client's stored counter next to the number of
// completed bookings actually recorded for it. providerID 0 covers all providers.
func (tx *Tx) CompletedCounts(ctx context.Context, providerID int64) (recorded, actual map[int64]int, err error) {
	recordedQuery := `SELECT id, completed_sessions FROM clients`
	actualQuery := `SELECT client_id, COUNT(*) FROM bookings WHERE status = ? AND client_id IS NOT NULL`
	var recordedArgs []interface{}
	actualArgs := []interface{}{models.StatusCompleted}
	if providerID > 0 {
		recordedQuery += ` WHERE provider_id = ?`
		recordedArgs = append(recordedArgs, providerID)
		actualQuery += ` AND provider_id = ?`
		actualArgs = append(actualArgs, providerID)
	}
	actualQuery += ` GROUP BY client_id`

	if recorded, err = countsByID(ctx, tx.tx, recordedQuery, recordedArgs...); err != nil {
		return nil, nil, err
	}
	if actual, err = countsByID(ctx, tx.tx, actualQuery, actualArgs...); err != nil {
		return nil, nil, err
	}
	return recorded, actual, nil
}

func (tx *Tx) SetCompletedSessions(ctx context.Context, clientID int64, n int) error {
	query := `UPDATE clients SET completed_sessions = ? WHERE id = ?`
	if _, err := tx.tx.ExecContext(ctx, query, n, clientID); err != nil {
		return fmt.Errorf("failed to set completed sessions: %w", err)
	}
	return nil
}

func countsByID(ctx context.Context, q querier, query string, args ...interface{}) (map[int64]int, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan session count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func getClient(ctx context.Context, q querier, query string, args ...interface{}) (*models.Client, error) {
	c, err := scanClient(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	return c, err
}

func scanClient(row rowScanner) (*models.Client, error) {
	var (
		c             models.Client
		defaultPrice  sql.NullFloat64
		joinedAt      int64
		lastSessionAt sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.ProviderID, &c.Name, &c.Email, &c.Phone, &defaultPrice,
		&c.CompletedSessions, &joinedAt, &lastSessionAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan client: %w", err)
	}
	c.DefaultPrice = fromNullFloat(defaultPrice)
	c.JoinedAt = fromUnix(joinedAt)
	c.LastSessionAt = fromNullUnix(lastSessionAt)
	return &c, nil
}
