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
	"sessionbook/internal/schedule"
)

const providerColumns = `id, slug, display_name, timezone, schedule_json, session_minutes, break_minutes,
	default_price, calendar_id, calendar_subject, telegram_chat_id, created_at, updated_at`

// UpsertProvider inserts a provider or updates the one with the same slug.
func (db *DB) UpsertProvider(ctx context.Context, p *models.Provider) error {
	scheduleJSON, err := schedule.Encode(p.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	var calendarID, calendarSubject string
	if p.Calendar != nil {
		calendarID, calendarSubject = p.Calendar.CalendarID, p.Calendar.Subject
	}

	now := time.Now()
	query := `INSERT INTO providers (
				slug, display_name, timezone, schedule_json, session_minutes, break_minutes,
				default_price, calendar_id, calendar_subject, telegram_chat_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET
				display_name = excluded.display_name,
				timezone = excluded.timezone,
				schedule_json = excluded.schedule_json,
				session_minutes = excluded.session_minutes,
				break_minutes = excluded.break_minutes,
				default_price = excluded.default_price,
				calendar_id = excluded.calendar_id,
				calendar_subject = excluded.calendar_subject,
				telegram_chat_id = excluded.telegram_chat_id,
				updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		p.Slug,
		p.DisplayName,
		p.Timezone,
		string(scheduleJSON),
		p.SessionMinutes,
		p.BreakMinutes,
		nullFloat(p.DefaultPrice),
		calendarID,
		calendarSubject,
		p.TelegramChatID,
		unix(now),
		unix(now),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}

	stored, err := db.GetProviderBySlug(ctx, p.Slug)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

// SetProviderSchedule stores raw schedule JSON as-is. Data written this way is
// normalized when read back, which lets older clients keep their own shape.
func (db *DB) SetProviderSchedule(ctx context.Context, providerID int64, raw []byte) error {
	query := `UPDATE providers SET schedule_json = ?, updated_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, string(raw), unix(time.Now()), providerID)
	if err != nil {
		return fmt.Errorf("failed to update provider schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProviderNotFound
	}
	return nil
}

func (db *DB) GetProviderBySlug(ctx context.Context, slug string) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE slug = ?`
	return db.queryProvider(ctx, query, strings.TrimSpace(slug))
}

func (db *DB) GetProviderByID(ctx context.Context, id int64) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = ?`
	return db.queryProvider(ctx, query, id)
}

func (db *DB) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p, err := db.scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate providers: %w", err)
	}
	return providers, nil
}

func (db *DB) queryProvider(ctx context.Context, query string, args ...interface{}) (*models.Provider, error) {
	p, err := db.scanProvider(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProviderNotFound
	}
	return p, err
}

func (db *DB) scanProvider(row rowScanner) (*models.Provider, error) {
	var (
		p               models.Provider
		scheduleJSON    sql.NullString
		defaultPrice    sql.NullFloat64
		calendarID      string
		calendarSubject string
		createdAt       int64
		updatedAt       int64
	)
	err := row.Scan(
		&p.ID, &p.Slug, &p.DisplayName, &p.Timezone, &scheduleJSON, &p.SessionMinutes, &p.BreakMinutes,
		&defaultPrice, &calendarID, &calendarSubject, &p.TelegramChatID, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan provider: %w", err)
	}

	ws, fellBack, normErr := schedule.Normalize([]byte(scheduleJSON.String))
	if normErr != nil {
		db.logger.Warn().Err(normErr).Str("provider", p.Slug).Msg("stored schedule is malformed, using default schedule")
	} else if fellBack {
		db.logger.Debug().Str("provider", p.Slug).Msg("provider has no schedule, using default schedule")
	}
	p.Schedule = ws

	p.DefaultPrice = fromNullFloat(defaultPrice)
	if calendarID != "" {
		p.Calendar = &models.CalendarCredentials{CalendarID: calendarID, Subject: calendarSubject}
	}
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	return &p, nil
}

// SeedProviders upserts every provider from a seed file. Existing bookings
// and clients of a provider are kept.
func (db *DB) SeedProviders(ctx context.Context, providers []*models.Provider) error {
	for _, p := range providers {
		if err := db.UpsertProvider(ctx, p); err != nil {
			return fmt.Errorf("seed provider %s: %w", p.Slug, err)
		}
	}
	return nil
}
