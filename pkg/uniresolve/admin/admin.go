// Package admin implements tenant-scoped user management for admins and
// platform statistics.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

// UserFilter narrows the user list
type UserFilter struct {
	Role         models.Role
	Search       string
	Active       *bool
	UniversityID *uint // super admin only
}

// CreateUserInput creates an account with any role. Used by admins for staff
// accounts and by the operator CLI.
type CreateUserInput struct {
	Email        string      `json:"email" binding:"required,email"`
	Username     string      `json:"username" binding:"required,min=3,max=50"`
	FullName     string      `json:"full_name" binding:"required,min=2,max=100"`
	Password     string      `json:"password" binding:"required,min=8"`
	Role         models.Role `json:"role" binding:"required"`
	UniversityID uint        `json:"university_id" binding:"required"`
	DepartmentID *uint       `json:"department_id"`
	StudentID    string      `json:"student_id"`
	EmployeeID   string      `json:"employee_id"`
	Phone        string      `json:"phone"`
}

// UpdateUserInput changes only the fields that are set
type UpdateUserInput struct {
	FullName     *string      `json:"full_name" binding:"omitempty,min=2,max=100"`
	Phone        *string      `json:"phone"`
	DepartmentID *uint        `json:"department_id"`
	EmployeeID   *string      `json:"employee_id"`
	Role         *models.Role `json:"role"`
	IsActive     *bool        `json:"is_active"`
	IsVerified   *bool        `json:"is_verified"`
}

type Service struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, validate: apperr.NewValidator()}
}

// ListUsers returns users of the caller's university, or of any university
// for a super admin.
func (s *Service) ListUsers(ctx context.Context, actor *models.User, f UserFilter, p pagination.Params) (pagination.Page[models.User], error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	switch {
	case actor.Role != models.RoleSuperAdmin:
		query = query.Where("university_id = ?", actor.UniversityID)
	case f.UniversityID != nil:
		query = query.Where("university_id = ?", *f.UniversityID)
	}
	if f.Role != "" {
		if !f.Role.Valid() {
			return pagination.Page[models.User]{}, apperr.Invalid("role", "unknown role")
		}
		query = query.Where("role = ?", f.Role)
	}
	if f.Active != nil {
		query = query.Where("is_active = ?", *f.Active)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(username) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return pagination.Page[models.User]{}, fmt.Errorf("count users: %w", err)
	}
	var users []models.User
	if err := query.Order("created_at DESC, id DESC").Scopes(p.Scope).Find(&users).Error; err != nil {
		return pagination.Page[models.User]{}, fmt.Errorf("list users: %w", err)
	}
	return pagination.NewPage(users, total, p), nil
}

// GetUser loads a user the caller administers. Users of other universities
// are reported as missing.
func (s *Service) GetUser(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, apperr.FromDB(err, "User")
	}
	if !access.CanManageTenant(actor, user.UniversityID) {
		return nil, apperr.NotFound("User")
	}
	return &user, nil
}

// ComplaintCounts returns how many complaints the user filed and how many
// are assigned to them.
func (s *Service) ComplaintCounts(ctx context.Context, userID uint) (filed, assigned int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&models.Complaint{}).Where("complainant_id = ?", userID).Count(&filed).Error; err != nil {
		return 0, 0, fmt.Errorf("count filed: %w", err)
	}
	if err = db.Model(&models.ComplaintAssignment{}).Where("user_id = ?", userID).Count(&assigned).Error; err != nil {
		return 0, 0, fmt.Errorf("count assigned: %w", err)
	}
	return filed, assigned, nil
}

func (s *Service) UpdateUser(ctx context.Context, actor *models.User, id uint, input UpdateUserInput) (*models.User, error) {
	if err := apperr.Check(s.validate, input); err != nil {
		return nil, err
	}
	user, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	changes := map[string]interface{}{}
	if input.Role != nil && *input.Role != user.Role {
		if !input.Role.Valid() {
			return nil, apperr.Invalid("role", "unknown role")
		}
		if !access.CanChangeRole(actor, user, *input.Role) {
			return nil, apperr.Forbidden("You cannot grant this role")
		}
		changes["role"] = *input.Role
	}
	if input.IsActive != nil && *input.IsActive != user.IsActive {
		if actor.ID == user.ID {
			return nil, apperr.Forbidden("You cannot deactivate yourself")
		}
		if user.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
			return nil, apperr.Forbidden("Only a super admin can change another super admin")
		}
		changes["is_active"] = *input.IsActive
	}
	if input.DepartmentID != nil {
		if err := checkDepartment(db, user.UniversityID, *input.DepartmentID); err != nil {
			return nil, err
		}
		changes["department_id"] = *input.DepartmentID
	}
	if input.FullName != nil {
		changes["full_name"] = strings.TrimSpace(*input.FullName)
	}
	if input.Phone != nil {
		changes["phone"] = *input.Phone
	}
	if input.EmployeeID != nil {
		changes["employee_id"] = *input.EmployeeID
	}
	if input.IsVerified != nil {
		changes["is_verified"] = *input.IsVerified
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := db.Model(user).Updates(changes).Error; err != nil {
		return nil, apperr.FromDB(err, "User")
	}
	if err := db.First(user, user.ID).Error; err != nil {
		return nil, apperr.FromDB(err, "User")
	}
	return user, nil
}

// CreateUser creates an account in a university. A nil actor is the
// operator CLI and bypasses role checks.
func (s *Service) CreateUser(ctx context.Context, actor *models.User, input CreateUserInput) (*models.User, error) {
	if err := apperr.Check(s.validate, input); err != nil {
		return nil, err
	}
	if !input.Role.Valid() {
		return nil, apperr.Invalid("role", "unknown role")
	}
	db := s.db.WithContext(ctx)

	if actor != nil {
		if !access.CanManageTenant(actor, input.UniversityID) {
			return nil, apperr.Forbidden("You cannot create users in this university")
		}
		if input.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
			return nil, apperr.Forbidden("You cannot grant this role")
		}
	}

	var university models.University
	if err := db.First(&university, input.UniversityID).Error; err != nil {
		return nil, apperr.Invalid("university_id", "unknown university")
	}
	if input.DepartmentID != nil {
		if err := checkDepartment(db, university.ID, *input.DepartmentID); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Username:     strings.TrimSpace(input.Username),
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: hash,
		Role:         input.Role,
		UniversityID: university.ID,
		DepartmentID: input.DepartmentID,
		StudentID:    input.StudentID,
		EmployeeID:   input.EmployeeID,
		Phone:        input.Phone,
		IsVerified:   true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, apperr.FromDB(err, "User")
	}
	return &user, nil
}

func checkDepartment(db *gorm.DB, universityID, departmentID uint) error {
	var dept models.Department
	if err := db.Where("id = ? AND university_id = ?", departmentID, universityID).First(&dept).Error; err != nil {
		return apperr.Invalid("department_id", "department does not belong to this university")
	}
	return nil
}
