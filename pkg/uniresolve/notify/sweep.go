package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// SweepResult summarises one overdue sweep
type SweepResult struct {
	Overdue       int `json:"overdue"`
	Notifications int `json:"notifications"`
	Skipped       int `json:"skipped"`
}

// SweepOverdue alerts on every complaint whose due date has passed while it
// is still open. Assignees are alerted; unassigned complaints go to the
// tenant's staff and admins instead, as do complaints whose assignees have
// all been deactivated. A recipient is alerted about a given
// complaint at most once per overdueRealertInterval.
func (d *Dispatcher) SweepOverdue(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	var complaints []models.Complaint
	err := d.db.WithContext(ctx).
		Preload("Assignments").
		Where("due_date IS NOT NULL AND due_date < ? AND status NOT IN ?", now,
			[]models.ComplaintStatus{models.StatusResolved, models.StatusClosed}).
		Order("due_date ASC").
		Find(&complaints).Error
	if err != nil {
		return result, fmt.Errorf("load overdue complaints: %w", err)
	}
	result.Overdue = len(complaints)

	for i := range complaints {
		c := &complaints[i]

		var (
			users []models.User
			n     note
			err   error
		)
		if ids := c.AssignedUserIDs(); len(ids) > 0 {
			users, err = d.activeUsers(ctx, ids)
			n = note{
				complaintID: c.ID,
				title:       TitleOverdue,
				message:     fmt.Sprintf("Complaint '%s' is overdue (due %s)", c.Title, c.DueDate.Format("2006-01-02 15:04")),
				kind:        models.NotificationAlert,
			}
		}
		// No assignee, or none still active.
		if err == nil && len(users) == 0 {
			users, err = d.tenantStaff(ctx, c.UniversityID)
			n = note{
				complaintID: c.ID,
				title:       TitleUnassignedOverdue,
				message:     fmt.Sprintf("Complaint '%s' is overdue and has no assignee", c.Title),
				kind:        models.NotificationAlert,
			}
		}
		if err != nil {
			d.logger.Error().Err(err).Uint("complaint_id", c.ID).Msg("load overdue recipients")
			continue
		}

		fresh := users[:0]
		for _, u := range users {
			if d.recentlyAlerted(ctx, u.ID, c.ID, now) {
				result.Skipped++
				continue
			}
			fresh = append(fresh, u)
		}
		result.Notifications += d.notifyUsers(ctx, fresh, n)
	}

	d.logger.Info().
		Int("overdue", result.Overdue).
		Int("notifications", result.Notifications).
		Int("skipped", result.Skipped).
		Msg("overdue sweep finished")
	return result, nil
}

func (d *Dispatcher) recentlyAlerted(ctx context.Context, userID, complaintID uint, now time.Time) bool {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND complaint_id = ? AND notification_type = ? AND created_at > ?",
			userID, complaintID, models.NotificationAlert, now.Add(-overdueRealertInterval)).
		Count(&count).Error
	if err != nil {
		d.logger.Warn().Err(err).Uint("complaint_id", complaintID).Msg("check previous overdue alert")
		return false
	}
	return count > 0
}

// RunSweeper runs SweepOverdue every interval until ctx is cancelled.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.SweepOverdue(ctx, d.now()); err != nil {
				d.logger.Error().Err(err).Msg("overdue sweep failed")
			}
		}
	}
}
