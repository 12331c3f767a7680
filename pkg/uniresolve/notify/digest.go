package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/activity"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// Digest builds the daily summary message for user, or "" when nothing
// happened in the window ending at now.
func (d *Dispatcher) Digest(ctx context.Context, user *models.User, now time.Time) (string, error) {
	since := now.Add(-digestWindow)
	db := d.db.WithContext(ctx)

	var parts []string

	if access.IsStaffTier(user.Role) {
		var newComplaints int64
		err := db.Model(&models.Complaint{}).
			Where("university_id = ? AND created_at >= ?", user.UniversityID, since).
			Count(&newComplaints).Error
		if err != nil {
			return "", fmt.Errorf("count new complaints: %w", err)
		}
		if newComplaints > 0 {
			parts = append(parts, fmt.Sprintf("%d new complaint(s) in your university", newComplaints))
		}
	}

	updates, err := activity.OnComplaintsOf(db, user.ID, since)
	if err != nil {
		return "", fmt.Errorf("load activity: %w", err)
	}
	if len(updates) > 0 {
		parts = append(parts, fmt.Sprintf("%d update(s) on your complaints", len(updates)))
	}

	if len(parts) == 0 {
		return "", nil
	}
	return "In the last 24 hours: " + strings.Join(parts, "; ") + ".", nil
}

// SendDigests creates one digest notification for every active user with
// something to report. It returns the number of digests sent.
func (d *Dispatcher) SendDigests(ctx context.Context, now time.Time) (int, error) {
	sent := 0
	var batch []models.User

	result := d.db.WithContext(ctx).
		Where("is_active = ?", true).
		FindInBatches(&batch, digestBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				u := batch[i]
				msg, err := d.Digest(ctx, &u, now)
				if err != nil {
					d.logger.Error().Err(err).Uint("user_id", u.ID).Msg("build digest")
					continue
				}
				if msg == "" {
					continue
				}
				sent += d.notifyUsers(ctx, []models.User{u}, note{
					title:   TitleDigest,
					message: msg,
					kind:    models.NotificationDigest,
				})
			}
			return nil
		})
	if result.Error != nil {
		return sent, fmt.Errorf("send digests: %w", result.Error)
	}

	d.logger.Info().Int("digests", sent).Msg("daily digests sent")
	return sent, nil
}
