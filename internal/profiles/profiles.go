// Package profiles persists each chat's enrolled semester and course.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pyqhub/pyqbot/core/logger"
)

// Enrollment is a chat's stored study profile.
type Enrollment struct {
	Semester string `db:"semester"`
	Course   string `db:"course"`
}

// Store reads and writes enrollments.
type Store interface {
	Get(ctx context.Context, chatID int64) (Enrollment, bool, error)
	Upsert(ctx context.Context, chatID int64, e Enrollment) error
	Count(ctx context.Context) (int64, error)
}

// PostgresStore keeps enrollments in the enrollments table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, chatID int64) (Enrollment, bool, error) {
	var e Enrollment
	err := s.db.GetContext(ctx, &e,
		`SELECT semester, course FROM enrollments WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, false, nil
	}
	if err != nil {
		return Enrollment{}, false, fmt.Errorf("profiles: get chat %d: %w", chatID, err)
	}
	return e, true, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, chatID int64, e Enrollment) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (chat_id, semester, course, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (chat_id) DO UPDATE
		 SET semester = EXCLUDED.semester, course = EXCLUDED.course, updated_at = NOW()`,
		chatID, e.Semester, e.Course)
	if err != nil {
		return fmt.Errorf("profiles: upsert chat %d: %w", chatID, err)
	}
	logger.Debug(ctx, "service.profiles", "enrollment.saved",
		slog.Int64("chat_id", chatID),
		slog.String("semester", e.Semester),
		slog.String("course", e.Course),
		slog.Duration("duration", logger.RoundMS(time.Since(start))))
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM enrollments`); err != nil {
		return 0, fmt.Errorf("profiles: count: %w", err)
	}
	return n, nil
}
