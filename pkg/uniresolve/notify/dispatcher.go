// Package notify turns complaint lifecycle events into per-user
// notifications and queued emails. Dispatch runs after the mutation has
// committed; every failure here is logged and swallowed.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/outbox"
)

const (
	TitleComplaintCreated  = "New Complaint Submitted"
	TitleStatusChanged     = "Complaint Status Updated"
	TitleComplaintAssigned = "Complaint Assigned"
	TitleMessageAdded      = "New Message"
	TitleOverdue           = "Overdue Complaint Alert"
	TitleUnassignedOverdue = "Unassigned Overdue Complaint"
	TitleDigest            = "Daily Digest"
	overdueRealertInterval = 24 * time.Hour
	digestWindow           = 24 * time.Hour
	digestBatchSize        = 200
)

// Dispatcher computes recipients for lifecycle events and records their
// notifications.
type Dispatcher struct {
	db      *gorm.DB
	queue   outbox.Queue
	logger  zerolog.Logger
	baseURL string
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. queue may be nil, in which case no
// emails are queued.
func NewDispatcher(db *gorm.DB, queue outbox.Queue, baseURL string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{db: db, queue: queue, logger: logger, baseURL: baseURL, now: time.Now}
}

// ComplaintCreated notifies every active staff member and admin of the
// complaint's university.
func (d *Dispatcher) ComplaintCreated(ctx context.Context, complaint *models.Complaint) {
	staff, err := d.tenantStaff(ctx, complaint.UniversityID)
	if err != nil {
		d.logger.Error().Err(err).Uint("complaint_id", complaint.ID).Msg("load tenant staff")
		return
	}
	recipients := exclude(staff, complaint.ComplainantID)

	d.notifyUsers(ctx, recipients, note{
		complaintID: complaint.ID,
		title:       TitleComplaintCreated,
		message:     fmt.Sprintf("A new %s complaint has been submitted: %s", complaint.Category, complaint.Title),
		kind:        models.NotificationSystem,
	})
}

// StatusChanged notifies the complainant and every assignee, except the
// actor.
func (d *Dispatcher) StatusChanged(ctx context.Context, complaint *models.Complaint, actor *models.User, from, to models.ComplaintStatus) {
	ids := StatusRecipients(complaint, actor.ID)
	d.notifyIDs(ctx, ids, note{
		complaintID: complaint.ID,
		title:       TitleStatusChanged,
		message:     fmt.Sprintf("Complaint '%s' status changed from %s to %s", complaint.Title, from, to),
		kind:        models.NotificationSystem,
	})
}

// Assigned notifies every member of the new assignee set.
func (d *Dispatcher) Assigned(ctx context.Context, complaint *models.Complaint, actor *models.User, assigneeIDs []uint) {
	d.notifyIDs(ctx, assigneeIDs, note{
		complaintID: complaint.ID,
		title:       TitleComplaintAssigned,
		message:     fmt.Sprintf("You have been assigned to complaint: %s", complaint.Title),
		kind:        models.NotificationSystem,
	})
}

// MessageAdded notifies the complainant and assignees, except the sender.
// Internal messages only reach users allowed to read them.
func (d *Dispatcher) MessageAdded(ctx context.Context, complaint *models.Complaint, sender *models.User, message *models.Message) {
	ids := MessageRecipients(complaint, sender.ID)
	users, err := d.activeUsers(ctx, ids)
	if err != nil {
		d.logger.Error().Err(err).Uint("complaint_id", complaint.ID).Msg("load message recipients")
		return
	}
	if message.IsInternal {
		visible := users[:0]
		for _, u := range users {
			if access.CanViewInternal(&u) {
				visible = append(visible, u)
			}
		}
		users = visible
	}

	d.notifyUsers(ctx, users, note{
		complaintID: complaint.ID,
		title:       TitleMessageAdded,
		message:     fmt.Sprintf("New message on complaint: %s", complaint.Title),
		kind:        models.NotificationSystem,
	})
}

// StatusRecipients returns complainant ∪ assignees minus the actor.
func StatusRecipients(complaint *models.Complaint, actorID uint) []uint {
	set := newIDSet()
	set.add(complaint.ComplainantID)
	for _, id := range complaint.AssignedUserIDs() {
		set.add(id)
	}
	set.remove(actorID)
	return set.list()
}

// MessageRecipients returns complainant ∪ assignees minus the sender.
func MessageRecipients(complaint *models.Complaint, senderID uint) []uint {
	return StatusRecipients(complaint, senderID)
}

// note is the content shared by all recipients of one event
type note struct {
	complaintID uint
	title       string
	message     string
	kind        models.NotificationType
}

func (d *Dispatcher) notifyIDs(ctx context.Context, ids []uint, n note) int {
	users, err := d.activeUsers(ctx, ids)
	if err != nil {
		d.logger.Error().Err(err).Uint("complaint_id", n.complaintID).Str("title", n.title).Msg("load recipients")
		return 0
	}
	return d.notifyUsers(ctx, users, n)
}

// notifyUsers creates one notification per user and queues its email. It
// returns the number of notifications stored.
func (d *Dispatcher) notifyUsers(ctx context.Context, users []models.User, n note) int {
	created := 0
	for _, u := range users {
		row := models.Notification{
			UserID:  u.ID,
			Title:   n.title,
			Message: n.message,
			Type:    n.kind,
		}
		if n.complaintID != 0 {
			cid := n.complaintID
			row.ComplaintID = &cid
		}

		if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
			d.logger.Error().Err(err).Uint("user_id", u.ID).Str("title", n.title).Msg("create notification")
			continue
		}
		created++
		d.enqueueEmail(ctx, u, row)
	}
	return created
}

func (d *Dispatcher) enqueueEmail(ctx context.Context, user models.User, n models.Notification) {
	if d.queue == nil || user.Email == "" {
		return
	}
	job := outbox.EmailJob{
		NotificationID: n.ID,
		To:             user.Email,
		RecipientName:  user.FullName,
		Subject:        n.Title,
		Message:        n.Message,
	}
	if n.ComplaintID != nil && d.baseURL != "" {
		job.Link = fmt.Sprintf("%s/complaints/%d", d.baseURL, *n.ComplaintID)
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		d.logger.Warn().Err(err).Uint("notification_id", n.ID).Msg("queue notification email")
	}
}

func (d *Dispatcher) activeUsers(ctx context.Context, ids []uint) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	err := d.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Order("id").Find(&users).Error
	return users, err
}

func (d *Dispatcher) tenantStaff(ctx context.Context, universityID uint) ([]models.User, error) {
	var users []models.User
	err := d.db.WithContext(ctx).
		Where("university_id = ? AND role IN ? AND is_active = ?", universityID, []models.Role{models.RoleStaff, models.RoleAdmin}, true).
		Order("id").
		Find(&users).Error
	return users, err
}

func exclude(users []models.User, id uint) []models.User {
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out
}

type idSet struct {
	seen  map[uint]bool
	order []uint
}

func newIDSet() *idSet {
	return &idSet{seen: map[uint]bool{}}
}

func (s *idSet) add(id uint) {
	if id == 0 || s.seen[id] {
		return
	}
	s.seen[id] = true
	s.order = append(s.order, id)
}

func (s *idSet) remove(id uint) {
	if !s.seen[id] {
		return
	}
	delete(s.seen, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *idSet) list() []uint {
	return append([]uint(nil), s.order...)
}
