// Package reminder derives push notifications from task records. Tasks are
// read-only from this engine's perspective; the deriver only creates and
// schedules notifications correlated back to their source task.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/lifelog-dev/beacon/internal/metrics"
	"github.com/lifelog-dev/beacon/internal/scheduler"
	"github.com/lifelog-dev/beacon/internal/store"
	"github.com/rs/zerolog"
)

// Config contains reminder derivation configuration
type Config struct {
	// Lookback bounds the batch query: reminders older than this are
	// ignored (unbounded into the future).
	Lookback time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Lookback: 24 * time.Hour,
	}
}

// Deriver turns task records into scheduled or immediate notifications.
type Deriver struct {
	config  Config
	tasks   domain.TaskRepository
	notifs  *store.NotificationStore
	sched   *scheduler.Scheduler
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// now is swappable for tests.
	now func() time.Time
}

// NewDeriver creates a reminder deriver.
func NewDeriver(config Config, tasks domain.TaskRepository, notifs *store.NotificationStore, sched *scheduler.Scheduler) *Deriver {
	if config.Lookback <= 0 {
		config.Lookback = DefaultConfig().Lookback
	}
	return &Deriver{
		config:  config,
		tasks:   tasks,
		notifs:  notifs,
		sched:   sched,
		logger:  logging.Component("reminder"),
		metrics: metrics.GetMetrics(),
		now:     time.Now,
	}
}

// ScheduleTaskReminder creates and arms a future reminder for the task.
// No-op when the task has no reminder time or a live reminder notification
// already exists for it (idempotent while the notification lives).
func (d *Deriver) ScheduleTaskReminder(task *domain.Task) {
	if task == nil || task.ReminderTime == nil {
		return
	}

	taskID := strconv.FormatInt(task.ID, 10)
	if existing := d.notifs.FindByTask(taskID, domain.NotificationTypeTaskReminder); existing != nil {
		d.logger.Debug().
			Int64("task", task.ID).
			Str("notification", existing.ID).
			Msg("Reminder already scheduled for task, skipping")
		return
	}

	data := map[string]string{
		domain.DataKeyTaskID: taskID,
		domain.DataKeyType:   domain.NotificationTypeTaskReminder,
	}
	body := fmt.Sprintf("Don't forget: %q", task.Title)
	if task.DueDate != nil {
		data[domain.DataKeyDueDate] = task.DueDate.Format("2006-01-02")
		body = fmt.Sprintf("Don't forget: %q is due %s", task.Title, dueText(*task.DueDate, d.now()))
	}

	n := d.notifs.Create(store.CreateInput{
		Title:         "Task Reminder",
		Body:          body,
		ScheduledTime: *task.ReminderTime,
		Repeat:        domain.RepeatNone,
		Data:          data,
	})
	d.sched.Schedule(n)
	d.metrics.RemindersScheduled.WithLabelValues(domain.NotificationTypeTaskReminder).Inc()

	d.logger.Info().
		Int64("task", task.ID).
		Str("notification", n.ID).
		Time("reminder", *task.ReminderTime).
		Msg("Scheduled task reminder")
}

// SendOverdueReminder creates an immediate notification for a task whose
// reminder time has already passed.
func (d *Deriver) SendOverdueReminder(task *domain.Task) {
	if task == nil || task.ReminderTime == nil {
		return
	}

	now := d.now()
	n := d.notifs.Create(store.CreateInput{
		Title:         "Overdue Task",
		Body:          fmt.Sprintf("Task %q is %s overdue", task.Title, overdueText(now.Sub(*task.ReminderTime))),
		ScheduledTime: now,
		Repeat:        domain.RepeatNone,
		Data: map[string]string{
			domain.DataKeyTaskID: strconv.FormatInt(task.ID, 10),
			domain.DataKeyType:   domain.NotificationTypeOverdueReminder,
		},
	})
	d.sched.Schedule(n)
	d.metrics.RemindersScheduled.WithLabelValues(domain.NotificationTypeOverdueReminder).Inc()

	d.logger.Info().
		Int64("task", task.ID).
		Str("notification", n.ID).
		Msg("Sent overdue reminder")
}

// ScheduleAllTaskReminders queries incomplete tasks with a reminder inside
// the lookback window and routes each to the overdue or future path. One
// task's failure never aborts the batch.
func (d *Deriver) ScheduleAllTaskReminders(ctx context.Context) error {
	cutoff := d.now().Add(-d.config.Lookback)
	tasks, err := d.tasks.QueryRemindable(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to query remindable tasks: %w", err)
	}

	d.logger.Info().Int("tasks", len(tasks)).Msg("Deriving reminders for remindable tasks")
	for _, task := range tasks {
		if err := d.route(task); err != nil {
			d.metrics.ReminderBatchErrors.Inc()
			d.logger.Error().Err(err).Int64("task", task.ID).Msg("Failed to process task reminder, continuing")
		}
	}
	return nil
}

// ScheduleReminderForTask is the single-task variant used when a task is
// created or edited.
func (d *Deriver) ScheduleReminderForTask(ctx context.Context, taskID int64) error {
	task, err := d.tasks.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", taskID, err)
	}
	return d.route(task)
}

// route sends an overdue reminder when the reminder time has passed
// (boundary inclusive of now), otherwise schedules a future one.
func (d *Deriver) route(task *domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing task: %v", r)
		}
	}()

	if task == nil || task.ReminderTime == nil || task.IsComplete {
		return nil
	}
	if !task.ReminderTime.After(d.now()) {
		d.SendOverdueReminder(task)
	} else {
		d.ScheduleTaskReminder(task)
	}
	return nil
}

// dueText renders a due date relative to today on calendar-day boundaries.
func dueText(due, now time.Time) string {
	truncate := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	days := int(truncate(due).Sub(truncate(now)).Hours() / 24)

	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days > 1:
		return fmt.Sprintf("in %d days", days)
	case days == -1:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", -days)
	}
}

// overdueText renders how long past the reminder time we are: hours under a
// day, days after that.
func overdueText(d time.Duration) string {
	hours := int(d.Hours())
	if hours < 1 {
		return "less than an hour"
	}
	if hours < 24 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := hours / 24
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
