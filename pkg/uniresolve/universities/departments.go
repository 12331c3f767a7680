package universities

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// DepartmentInput is the payload for a new department
type DepartmentInput struct {
	Name        string `json:"name" binding:"required,min=2,max=100"`
	Code        string `json:"code" binding:"required,min=2,max=10,alphanum"`
	Description string `json:"description"`
	Email       string `json:"email" binding:"omitempty,email"`
	Phone       string `json:"phone"`
	HeadID      *uint  `json:"head_id"`
}

// DepartmentUpdate changes only the fields that are set
type DepartmentUpdate struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=100"`
	Description *string `json:"description"`
	Email       *string `json:"email" binding:"omitempty,email"`
	Phone       *string `json:"phone"`
	HeadID      *uint   `json:"head_id"`
	IsActive    *bool   `json:"is_active"`
}

// ListDepartments returns a university's departments ordered by name. Any
// member of the university may read them.
func (s *Service) ListDepartments(ctx context.Context, actor *models.User, universityID uint, activeOnly bool) ([]models.Department, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.load(db, actor, universityID); err != nil {
		return nil, err
	}

	query := db.Where("university_id = ?", universityID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var depts []models.Department
	if err := query.Order("name ASC").Find(&depts).Error; err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

func (s *Service) CreateDepartment(ctx context.Context, actor *models.User, universityID uint, input DepartmentInput) (*models.Department, error) {
	if err := apperr.Check(s.validate, input); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	u, err := s.load(db, actor, universityID)
	if err != nil {
		return nil, err
	}
	if !access.CanManageTenant(actor, u.ID) {
		return nil, apperr.Forbidden("Admin access required")
	}
	if err := checkHead(db, u.ID, input.HeadID); err != nil {
		return nil, err
	}

	d := models.Department{
		UniversityID: u.ID,
		Name:         strings.TrimSpace(input.Name),
		Code:         strings.ToUpper(strings.TrimSpace(input.Code)),
		Description:  input.Description,
		Email:        strings.ToLower(input.Email),
		Phone:        input.Phone,
		HeadID:       input.HeadID,
	}
	if err := db.Create(&d).Error; err != nil {
		return nil, apperr.FromDB(err, "Department")
	}
	return &d, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, actor *models.User, universityID, deptID uint, input DepartmentUpdate) (*models.Department, error) {
	if err := apperr.Check(s.validate, input); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	u, err := s.load(db, actor, universityID)
	if err != nil {
		return nil, err
	}
	if !access.CanManageTenant(actor, u.ID) {
		return nil, apperr.Forbidden("Admin access required")
	}

	var d models.Department
	if err := db.Where("id = ? AND university_id = ?", deptID, u.ID).First(&d).Error; err != nil {
		return nil, apperr.FromDB(err, "Department")
	}
	if err := checkHead(db, u.ID, input.HeadID); err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if input.Name != nil {
		changes["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		changes["description"] = *input.Description
	}
	if input.Email != nil {
		changes["email"] = strings.ToLower(*input.Email)
	}
	if input.Phone != nil {
		changes["phone"] = *input.Phone
	}
	if input.HeadID != nil {
		changes["head_id"] = *input.HeadID
	}
	if input.IsActive != nil {
		changes["is_active"] = *input.IsActive
	}
	if len(changes) > 0 {
		if err := db.Model(&d).Updates(changes).Error; err != nil {
			return nil, apperr.FromDB(err, "Department")
		}
		if err := db.First(&d, d.ID).Error; err != nil {
			return nil, apperr.FromDB(err, "Department")
		}
	}
	return &d, nil
}

// checkHead requires a department head to be an active staff member of the
// same university.
func checkHead(db *gorm.DB, universityID uint, headID *uint) error {
	if headID == nil {
		return nil
	}
	var head models.User
	err := db.Where("id = ? AND university_id = ? AND is_active = ?", *headID, universityID, true).First(&head).Error
	if err != nil || !access.IsStaffTier(head.Role) {
		return apperr.Invalid("head_id", "must be an active staff member of this university")
	}
	return nil
}
