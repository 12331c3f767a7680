// Package complaints implements the complaint lifecycle: intake, listing,
// edits, status transitions, assignment, rating, messages and attachments.
//
// Every mutation runs in one transaction together with its activity row and
// is guarded by the complaint version. Notifications are dispatched only
// after the transaction has committed.
package complaints

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/activity"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/files"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

// Notifier receives lifecycle events after they have been committed.
type Notifier interface {
	ComplaintCreated(ctx context.Context, complaint *models.Complaint)
	StatusChanged(ctx context.Context, complaint *models.Complaint, actor *models.User, from, to models.ComplaintStatus)
	Assigned(ctx context.Context, complaint *models.Complaint, actor *models.User, assigneeIDs []uint)
	MessageAdded(ctx context.Context, complaint *models.Complaint, sender *models.User, message *models.Message)
}

type noopNotifier struct{}

func (noopNotifier) ComplaintCreated(context.Context, *models.Complaint) {}

func (noopNotifier) StatusChanged(context.Context, *models.Complaint, *models.User, models.ComplaintStatus, models.ComplaintStatus) {
}

func (noopNotifier) Assigned(context.Context, *models.Complaint, *models.User, []uint) {}

func (noopNotifier) MessageAdded(context.Context, *models.Complaint, *models.User, *models.Message) {}

// SLA returns how long a complaint of the given priority may stay open.
func SLA(p models.Priority) time.Duration {
	switch p {
	case models.PriorityUrgent:
		return 24 * time.Hour
	case models.PriorityHigh:
		return 72 * time.Hour
	case models.PriorityLow:
		return 14 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// Service is the complaint lifecycle manager
type Service struct {
	db       *gorm.DB
	notifier Notifier
	files    files.Store
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a complaint service. notifier may be nil.
func NewService(db *gorm.DB, notifier Notifier, store files.Store, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{
		db:       db,
		notifier: notifier,
		files:    store,
		validate: apperr.NewValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// CreateInput is the payload for filing a complaint
type CreateInput struct {
	Title        string          `json:"title" binding:"required,min=5,max=200"`
	Description  string          `json:"description" binding:"required,min=10"`
	Category     models.Category `json:"category" binding:"required"`
	Priority     models.Priority `json:"priority"`
	UniversityID uint            `json:"university_id"`
	DepartmentID *uint           `json:"department_id"`
	IsAnonymous  bool            `json:"is_anonymous"`
	IncidentDate *time.Time      `json:"incident_date"`
	Location     string          `json:"location" binding:"max=255"`
	Witnesses    []string        `json:"witnesses"`
}

// UpdateInput is a partial edit. Nil fields are left unchanged. Version,
// when set, must match the stored version.
type UpdateInput struct {
	Title        *string          `json:"title" binding:"omitempty,min=5,max=200"`
	Description  *string          `json:"description" binding:"omitempty,min=10"`
	Category     *models.Category `json:"category"`
	Priority     *models.Priority `json:"priority"`
	DepartmentID *uint            `json:"department_id"`
	IncidentDate *time.Time       `json:"incident_date"`
	Location     *string          `json:"location" binding:"omitempty,max=255"`
	Witnesses    *[]string        `json:"witnesses"`
	Version      *uint            `json:"version"`
}

// StatusInput moves a complaint to a new status
type StatusInput struct {
	Status     models.ComplaintStatus `json:"status" binding:"required"`
	Resolution string                 `json:"resolution"`
	Version    *uint                  `json:"version"`
}

// RatingInput is the complainant's satisfaction feedback
type RatingInput struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback" binding:"max=2000"`
}

// ListFilter narrows a complaint listing. Zero values mean "any".
type ListFilter struct {
	Status       models.ComplaintStatus
	Category     models.Category
	Priority     models.Priority
	UniversityID *uint
	DepartmentID *uint
	AssigneeID   *uint
	From         *time.Time
	To           *time.Time
	Search       string
}

func (s *Service) check(input interface{}) error {
	return apperr.Check(s.validate, input)
}

// Create files a complaint on behalf of actor.
func (s *Service) Create(ctx context.Context, actor *models.User, input CreateInput) (*models.Complaint, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	if input.UniversityID != 0 && input.UniversityID != actor.UniversityID {
		return nil, apperr.Invalid("university_id", "must be your own university")
	}
	if !input.Category.Valid() {
		return nil, apperr.Invalid("category", "unknown category")
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, apperr.Invalid("priority", "must be one of: low, medium, high, urgent")
	}

	db := s.db.WithContext(ctx)
	if err := checkDepartment(db, input.DepartmentID, actor.UniversityID); err != nil {
		return nil, err
	}

	now := s.now()
	due := now.Add(SLA(input.Priority))
	complaint := models.Complaint{
		CreatedAt:     now,
		UpdatedAt:     now,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Category:      input.Category,
		Priority:      input.Priority,
		Status:        models.StatusSubmitted,
		ComplainantID: actor.ID,
		UniversityID:  actor.UniversityID,
		DepartmentID:  input.DepartmentID,
		IsAnonymous:   input.IsAnonymous,
		IncidentDate:  input.IncidentDate,
		Location:      input.Location,
		Witnesses:     witnesses(input.Witnesses),
		DueDate:       &due,
		Version:       1,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&complaint).Error; err != nil {
			return err
		}
		return activity.Record(tx, activity.Entry{
			ComplaintID: complaint.ID,
			UserID:      actor.ID,
			Action:      models.ActionComplaintCreated,
			Description: fmt.Sprintf("Complaint created: %s", complaint.Title),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create complaint: %w", err)
	}

	created, err := s.load(db, complaint.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.ComplaintCreated(ctx, created)
	return created, nil
}

// Get returns a complaint actor may view.
func (s *Service) Get(ctx context.Context, actor *models.User, id uint) (*models.Complaint, error) {
	complaint, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	return complaint, nil
}

// List returns complaints actor may view, newest first. Staff and admins see
// their university, super admins see every university, and everyone else
// sees what they filed or are assigned to.
func (s *Service) List(ctx context.Context, actor *models.User, filter ListFilter, page pagination.Params) (pagination.Page[models.Complaint], error) {
	var result pagination.Page[models.Complaint]

	query := s.db.WithContext(ctx).Model(&models.Complaint{})
	switch {
	case actor.Role == models.RoleSuperAdmin:
		if filter.UniversityID != nil {
			query = query.Where("university_id = ?", *filter.UniversityID)
		}
	case access.IsStaffTier(actor.Role):
		query = query.Where("university_id = ?", actor.UniversityID)
	default:
		query = query.Where("university_id = ?", actor.UniversityID).
			Where("complainant_id = ? OR id IN (?)", actor.ID,
				s.db.Model(&models.ComplaintAssignment{}).Select("complaint_id").Where("user_id = ?", actor.ID))
	}

	if filter.Status != "" {
		if !filter.Status.Valid() {
			return result, apperr.Invalid("status", "unknown status")
		}
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		if !filter.Category.Valid() {
			return result, apperr.Invalid("category", "unknown category")
		}
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Priority != "" {
		if !filter.Priority.Valid() {
			return result, apperr.Invalid("priority", "unknown priority")
		}
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.DepartmentID != nil {
		query = query.Where("department_id = ?", *filter.DepartmentID)
	}
	if filter.AssigneeID != nil {
		query = query.Where("id IN (?)",
			s.db.Model(&models.ComplaintAssignment{}).Select("complaint_id").Where("user_id = ?", *filter.AssigneeID))
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return result, fmt.Errorf("count complaints: %w", err)
	}

	var rows []models.Complaint
	err := query.Preload("Assignments").Preload("Complainant").
		Order("created_at DESC, id DESC").
		Scopes(page.Scope).
		Find(&rows).Error
	if err != nil {
		return result, fmt.Errorf("list complaints: %w", err)
	}
	return pagination.NewPage(rows, total, page), nil
}

// Update edits complaint fields. A priority change is recorded as
// priority_changed with old and new values and moves the due date; any
// other edit is recorded as a single complaint_updated entry.
func (s *Service) Update(ctx context.Context, actor *models.User, id uint, input UpdateInput) (*models.Complaint, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	complaint, err := s.loadForMutation(db, actor, id, input.Version)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	var changed []string
	set := func(column string, value interface{}) {
		fields[column] = value
		changed = append(changed, column)
	}

	if input.Title != nil && strings.TrimSpace(*input.Title) != complaint.Title {
		set("title", strings.TrimSpace(*input.Title))
	}
	if input.Description != nil && strings.TrimSpace(*input.Description) != complaint.Description {
		set("description", strings.TrimSpace(*input.Description))
	}
	if input.Category != nil && *input.Category != complaint.Category {
		if !input.Category.Valid() {
			return nil, apperr.Invalid("category", "unknown category")
		}
		set("category", *input.Category)
	}
	if input.DepartmentID != nil && !sameUint(input.DepartmentID, complaint.DepartmentID) {
		if err := checkDepartment(db, input.DepartmentID, complaint.UniversityID); err != nil {
			return nil, err
		}
		set("department_id", *input.DepartmentID)
	}
	if input.IncidentDate != nil && !sameTime(input.IncidentDate, complaint.IncidentDate) {
		set("incident_date", *input.IncidentDate)
	}
	if input.Location != nil && *input.Location != complaint.Location {
		set("location", *input.Location)
	}
	if input.Witnesses != nil {
		set("witnesses", datatypes.JSONSlice[string](witnesses(*input.Witnesses)))
	}

	priorityChanged := input.Priority != nil && *input.Priority != complaint.Priority
	if priorityChanged {
		if !input.Priority.Valid() {
			return nil, apperr.Invalid("priority", "must be one of: low, medium, high, urgent")
		}
		fields["priority"] = *input.Priority
		fields["due_date"] = complaint.CreatedAt.Add(SLA(*input.Priority))
	}

	if len(fields) == 0 {
		return complaint, nil
	}

	var entry activity.Entry
	if priorityChanged {
		desc := fmt.Sprintf("Priority changed from %s to %s", complaint.Priority, *input.Priority)
		if len(changed) > 0 {
			desc += "; also updated " + strings.Join(changed, ", ")
		}
		entry = activity.Change(complaint.ID, actor.ID, models.ActionPriorityChanged, desc,
			string(complaint.Priority), string(*input.Priority))
	} else {
		entry = activity.Entry{
			ComplaintID: complaint.ID,
			UserID:      actor.ID,
			Action:      models.ActionComplaintUpdated,
			Description: "Updated " + strings.Join(changed, ", "),
		}
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := s.bump(tx, complaint, fields); err != nil {
			return err
		}
		return activity.Record(tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return s.load(db, complaint.ID)
}

// ChangeStatus moves a complaint through its lifecycle. Setting the current
// status again is a no-op, except that a new resolution text on a resolved
// complaint replaces the old one.
func (s *Service) ChangeStatus(ctx context.Context, actor *models.User, id uint, input StatusInput) (*models.Complaint, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	if !input.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown status")
	}

	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	if !access.CanChangeStatus(actor, complaint, input.Status) {
		return nil, apperr.Forbidden("You are not allowed to change the status of this complaint")
	}
	if err := checkVersion(complaint, input.Version); err != nil {
		return nil, err
	}

	from, to := complaint.Status, input.Status
	resolution := strings.TrimSpace(input.Resolution)

	if from == to {
		if to != models.StatusResolved || resolution == "" || resolution == complaint.Resolution {
			return complaint, nil
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := s.bump(tx, complaint, map[string]interface{}{"resolution": resolution}); err != nil {
				return err
			}
			return activity.Record(tx, activity.Change(complaint.ID, actor.ID, models.ActionResolutionUpdated,
				"Resolution updated", complaint.Resolution, resolution))
		})
		if err != nil {
			return nil, err
		}
		return s.load(db, complaint.ID)
	}

	fields := map[string]interface{}{"status": to}
	switch {
	case to == models.StatusResolved:
		fields["resolved_at"] = s.now()
		fields["resolved_by_id"] = actor.ID
		if resolution != "" {
			fields["resolution"] = resolution
		}
	case from == models.StatusResolved && !to.IsTerminal():
		fields["resolved_at"] = nil
		fields["resolved_by_id"] = nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := s.bump(tx, complaint, fields); err != nil {
			return err
		}
		return activity.Record(tx, activity.Change(complaint.ID, actor.ID, models.ActionStatusChanged,
			fmt.Sprintf("Status changed from %s to %s", from, to), string(from), string(to)))
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.load(db, complaint.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.StatusChanged(ctx, updated, actor, from, to)
	return updated, nil
}

// Assign replaces the assignee set. Duplicate ids collapse and an empty list
// unassigns everyone. Assigning the current set again changes nothing.
func (s *Service) Assign(ctx context.Context, actor *models.User, id uint, userIDs []uint) (*models.Complaint, error) {
	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	if !access.CanAssign(actor, complaint) {
		return nil, apperr.Forbidden("Only staff can assign complaints")
	}

	ids := uniqueIDs(userIDs)
	current := uniqueIDs(complaint.AssignedUserIDs())
	if reflect.DeepEqual(current, ids) {
		return complaint, nil
	}
	if err := checkAssignees(db, ids, complaint.UniversityID); err != nil {
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("complaint_id = ?", complaint.ID).Delete(&models.ComplaintAssignment{}).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			rows := make([]models.ComplaintAssignment, len(ids))
			for i, uid := range ids {
				rows[i] = models.ComplaintAssignment{ComplaintID: complaint.ID, UserID: uid}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if err := s.bump(tx, complaint, map[string]interface{}{}); err != nil {
			return err
		}

		desc := "Unassigned all users"
		if len(ids) > 0 {
			desc = fmt.Sprintf("Assigned to %d user(s)", len(ids))
		}
		return activity.Record(tx, activity.Change(complaint.ID, actor.ID, models.ActionComplaintAssigned,
			desc, joinIDs(current), joinIDs(ids)))
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.load(db, complaint.ID)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.notifier.Assigned(ctx, updated, actor, ids)
	}
	return updated, nil
}

// Rate stores the complainant's satisfaction rating.
func (s *Service) Rate(ctx context.Context, actor *models.User, id uint, input RatingInput) (*models.Complaint, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	if !access.CanRate(actor, complaint) {
		return nil, apperr.Forbidden("Only the complainant can rate a resolved or closed complaint")
	}

	old := ""
	if complaint.SatisfactionRating != nil {
		old = strconv.Itoa(*complaint.SatisfactionRating)
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"satisfaction_rating": input.Rating,
			"feedback":            strings.TrimSpace(input.Feedback),
		}
		if err := s.bump(tx, complaint, fields); err != nil {
			return err
		}
		return activity.Record(tx, activity.Change(complaint.ID, actor.ID, models.ActionComplaintRated,
			fmt.Sprintf("Rated %d/5", input.Rating), old, strconv.Itoa(input.Rating)))
	})
	if err != nil {
		return nil, err
	}
	return s.load(db, complaint.ID)
}

// Activities returns the complaint's history, oldest first.
func (s *Service) Activities(ctx context.Context, actor *models.User, id uint) ([]models.Activity, error) {
	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	return activity.ForComplaint(db, complaint.ID)
}

// bump applies fields to the complaint only if nobody changed it since it
// was loaded, and advances the version.
func (s *Service) bump(tx *gorm.DB, complaint *models.Complaint, fields map[string]interface{}) error {
	fields["version"] = complaint.Version + 1
	fields["updated_at"] = s.now()

	result := tx.Model(&models.Complaint{}).
		Where("id = ? AND version = ?", complaint.ID, complaint.Version).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("update complaint %d: %w", complaint.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("Complaint was modified by someone else, reload and try again")
	}
	complaint.Version++
	return nil
}

func (s *Service) load(db *gorm.DB, id uint) (*models.Complaint, error) {
	var complaint models.Complaint
	err := db.Preload("Assignments").Preload("Complainant").First(&complaint, id).Error
	if err != nil {
		return nil, apperr.FromDB(err, "Complaint")
	}
	return &complaint, nil
}

func (s *Service) loadForMutation(db *gorm.DB, actor *models.User, id uint, version *uint) (*models.Complaint, error) {
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	if !access.CanMutate(actor, complaint) {
		return nil, apperr.Forbidden("This complaint can no longer be modified")
	}
	if err := checkVersion(complaint, version); err != nil {
		return nil, err
	}
	return complaint, nil
}

// visible reports complaints outside the actor's university as missing so
// their existence does not leak across tenants.
func visible(actor *models.User, complaint *models.Complaint) error {
	if access.CanAccess(actor, complaint) {
		return nil
	}
	if actor == nil || (actor.Role != models.RoleSuperAdmin && actor.UniversityID != complaint.UniversityID) {
		return apperr.NotFound("Complaint")
	}
	return apperr.Forbidden("You do not have access to this complaint")
}

func checkVersion(complaint *models.Complaint, version *uint) error {
	if version != nil && *version != complaint.Version {
		return apperr.Conflict(fmt.Sprintf("Complaint version is %d, not %d", complaint.Version, *version))
	}
	return nil
}

func checkDepartment(db *gorm.DB, departmentID *uint, universityID uint) error {
	if departmentID == nil {
		return nil
	}
	var count int64
	err := db.Model(&models.Department{}).
		Where("id = ? AND university_id = ?", *departmentID, universityID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apperr.Invalid("department_id", "department does not belong to this university")
	}
	return nil
}

func checkAssignees(db *gorm.DB, ids []uint, universityID uint) error {
	if len(ids) == 0 {
		return nil
	}
	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return err
	}
	found := make(map[uint]models.User, len(users))
	for _, u := range users {
		found[u.ID] = u
	}

	fields := map[string]string{}
	for _, id := range ids {
		u, ok := found[id]
		switch {
		case !ok:
			fields[fmt.Sprintf("user_ids[%d]", id)] = "user does not exist"
		case !u.IsActive:
			fields[fmt.Sprintf("user_ids[%d]", id)] = "user is inactive"
		case !access.IsStaffTier(u.Role):
			fields[fmt.Sprintf("user_ids[%d]", id)] = "only staff can be assigned"
		case u.UniversityID != universityID:
			fields[fmt.Sprintf("user_ids[%d]", id)] = "user belongs to another university"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid assignees", fields)
	}
	return nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func witnesses(in []string) []string {
	out := make([]string, 0, len(in))
	for _, w := range in {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameUint(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
