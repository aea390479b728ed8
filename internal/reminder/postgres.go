package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq"
)

const queryTimeout = 5 * time.Second

// PostgresTaskRepository reads task records from the life-tracker's tasks
// table. Read-only: this engine never mutates tasks.
type PostgresTaskRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ domain.TaskRepository = (*PostgresTaskRepository)(nil)

// NewPostgresTaskRepository opens a connection pool for the given DSN.
func NewPostgresTaskRepository(dsn string) (*PostgresTaskRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)

	return &PostgresTaskRepository{
		db:     db,
		logger: logging.Component("task-repository"),
	}, nil
}

// QueryRemindable returns incomplete tasks whose reminder time is set and
// no older than the cutoff, soonest first.
func (r *PostgresTaskRepository) QueryRemindable(ctx context.Context, notOlderThan time.Time) ([]*domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, due_date, reminder_time, reminder_type, is_complete
		 FROM tasks
		 WHERE reminder_time IS NOT NULL
		   AND is_complete = false
		   AND reminder_time > $1
		 ORDER BY reminder_time ASC`,
		notOlderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a single task by ID.
func (r *PostgresTaskRepository) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, due_date, reminder_time, reminder_type, is_complete
		 FROM tasks
		 WHERE id = $1`,
		id)
	return scanTask(row)
}

// Close releases the connection pool.
func (r *PostgresTaskRepository) Close() error {
	r.logger.Debug().Msg("Closing task database connection pool")
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.Task, error) {
	var (
		task         domain.Task
		dueDate      sql.NullTime
		reminderTime sql.NullTime
		reminderType sql.NullString
	)
	if err := s.Scan(&task.ID, &task.Title, &dueDate, &reminderTime, &reminderType, &task.IsComplete); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if reminderTime.Valid {
		task.ReminderTime = &reminderTime.Time
	}
	task.ReminderType = reminderType.String
	return &task, nil
}
