package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hray3182/chime/internal/database"
	"github.com/hray3182/chime/internal/models"
)

const scheduleColumns = `id, title, description, date, time, repeat, pre_notified, start_notified,
	last_occurrence_key, tts_message, tts_lead_message, created_at, updated_at`

type ScheduleRepository struct {
	db *database.DB
}

func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Replace overwrites the remote collection with schedules and returns what
// the database holds afterwards, in one transaction.
func (r *ScheduleRepository) Replace(ctx context.Context, schedules []models.Schedule) ([]models.Schedule, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM schedules`); err != nil {
		return nil, fmt.Errorf("failed to clear schedules: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range schedules {
		repeat, err := encodeRepeat(s.Repeat)
		if err != nil {
			return nil, err
		}
		batch.Queue(
			`INSERT INTO schedules (`+scheduleColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			s.ID, s.Title, s.Description, s.Date, s.Time, repeat, s.PreNotified, s.StartNotified,
			s.LastOccurrenceKey, s.TTSMessage, s.TTSLeadMessage, s.CreatedAt, s.UpdatedAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("failed to insert schedules: %w", err)
		}
	}

	out, err := list(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return out, nil
}

func (r *ScheduleRepository) List(ctx context.Context) ([]models.Schedule, error) {
	return list(ctx, r.db.Pool)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func list(ctx context.Context, q querier) ([]models.Schedule, error) {
	rows, err := q.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var s models.Schedule
		var repeat []byte
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.Date, &s.Time, &repeat, &s.PreNotified,
			&s.StartNotified, &s.LastOccurrenceKey, &s.TTSMessage, &s.TTSLeadMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if len(repeat) > 0 {
			var rep models.Repeat
			if err := json.Unmarshal(repeat, &rep); err == nil {
				s.Repeat = models.NormalizeRepeat(&rep)
			}
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func encodeRepeat(r *models.Repeat) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode repeat: %w", err)
	}
	return b, nil
}
