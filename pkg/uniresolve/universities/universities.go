// Package universities manages tenants and their departments.
package universities

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

// CreateInput is the payload for a new university
type CreateInput struct {
	Name     string `json:"name" binding:"required,min=2,max=255"`
	Code     string `json:"code" binding:"required,min=2,max=50,alphanum"`
	Domain   string `json:"domain" binding:"required,max=100"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Email    string `json:"email" binding:"omitempty,email"`
	Timezone string `json:"timezone" binding:"omitempty,timezone"`
}

// UpdateInput changes only the fields that are set. Only a super admin may
// change IsActive.
type UpdateInput struct {
	Name     *string `json:"name" binding:"omitempty,min=2,max=255"`
	Domain   *string `json:"domain" binding:"omitempty,min=1,max=100"`
	Address  *string `json:"address"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Timezone *string `json:"timezone" binding:"omitempty,timezone"`
	IsActive *bool   `json:"is_active"`
}

type Service struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, validate: apperr.NewValidator()}
}

// Create registers a new university. Codes are stored upper case and must be
// unique.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.University, error) {
	if err := apperr.Check(s.validate, input); err != nil {
		return nil, err
	}
	u := models.University{
		Name:     strings.TrimSpace(input.Name),
		Code:     strings.ToUpper(strings.TrimSpace(input.Code)),
		Domain:   strings.ToLower(strings.TrimSpace(input.Domain)),
		Address:  input.Address,
		Phone:    input.Phone,
		Email:    strings.ToLower(input.Email),
		Timezone: input.Timezone,
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, apperr.FromDB(err, "University")
	}
	return &u, nil
}

// load returns the university if actor may see it. Other tenants are
// reported as missing.
func (s *Service) load(db *gorm.DB, actor *models.User, id uint) (*models.University, error) {
	if actor.Role != models.RoleSuperAdmin && actor.UniversityID != id {
		return nil, apperr.NotFound("University")
	}
	var u models.University
	if err := db.First(&u, id).Error; err != nil {
		return nil, apperr.FromDB(err, "University")
	}
	return &u, nil
}

func (s *Service) Get(ctx context.Context, actor *models.User, id uint) (*models.University, error) {
	return s.load(s.db.WithContext(ctx), actor, id)
}

// List returns every university for a super admin and the caller's own
// university for everyone else.
func (s *Service) List(ctx context.Context, actor *models.User, p pagination.Params) (pagination.Page[models.University], error) {
	query := s.db.WithContext(ctx).Model(&models.University{})
	if actor.Role != models.RoleSuperAdmin {
		query = query.Where("id = ?", actor.UniversityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return pagination.Page[models.University]{}, fmt.Errorf("count universities: %w", err)
	}
	var items []models.University
	if err := query.Order("name ASC, id ASC").Scopes(p.Scope).Find(&items).Error; err != nil {
		return pagination.Page[models.University]{}, fmt.Errorf("list universities: %w", err)
	}
	return pagination.NewPage(items, total, p), nil
}

// ListPublic returns the active universities offered at sign-up.
func (s *Service) ListPublic(ctx context.Context) ([]models.University, error) {
	var items []models.University
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list public universities: %w", err)
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, actor *models.User, id uint, input UpdateInput) (*models.University, error) {
	if err := apperr.Check(s.validate, input); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	u, err := s.load(db, actor, id)
	if err != nil {
		return nil, err
	}
	if !access.CanManageTenant(actor, u.ID) {
		return nil, apperr.Forbidden("Admin access required")
	}
	if input.IsActive != nil && actor.Role != models.RoleSuperAdmin {
		return nil, apperr.Forbidden("Only a super admin can activate or deactivate a university")
	}

	changes := map[string]interface{}{}
	if input.Name != nil {
		changes["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Domain != nil {
		changes["domain"] = strings.ToLower(strings.TrimSpace(*input.Domain))
	}
	if input.Address != nil {
		changes["address"] = *input.Address
	}
	if input.Phone != nil {
		changes["phone"] = *input.Phone
	}
	if input.Email != nil {
		changes["email"] = strings.ToLower(*input.Email)
	}
	if input.Timezone != nil {
		changes["timezone"] = *input.Timezone
	}
	if input.IsActive != nil {
		changes["is_active"] = *input.IsActive
	}
	if len(changes) == 0 {
		return u, nil
	}

	if err := db.Model(u).Updates(changes).Error; err != nil {
		return nil, apperr.FromDB(err, "University")
	}
	return s.load(db, actor, id)
}
