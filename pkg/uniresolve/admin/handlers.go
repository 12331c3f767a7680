package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/analytics"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

// Handler handles admin requests
type Handler struct {
	svc    *Service
	stats  *analytics.Service
	logger zerolog.Logger
}

// NewHandler creates a new admin handler
func NewHandler(svc *Service, stats *analytics.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, stats: stats, logger: logger}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	auth.UserResponse
	Phone              string `json:"phone,omitempty"`
	StudentID          string `json:"student_id,omitempty"`
	EmployeeID         string `json:"employee_id,omitempty"`
	FiledComplaints    int64  `json:"filed_complaints"`
	AssignedComplaints int64  `json:"assigned_complaints"`
}

func toResponse(u *models.User) UserResponse {
	return UserResponse{
		UserResponse: auth.ToUserResponse(u),
		Phone:        u.Phone,
		StudentID:    u.StudentID,
		EmployeeID:   u.EmployeeID,
	}
}

func (h *Handler) detailed(c *gin.Context, status int, user *models.User) {
	resp := toResponse(user)
	filed, assigned, err := h.svc.ComplaintCounts(c.Request.Context(), user.ID)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	resp.FiledComplaints = filed
	resp.AssignedComplaints = assigned
	c.JSON(status, resp)
}

func userID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return uint(id), true
}

// ListUsers returns users the caller administers
// @Summary List users
// @Tags admin
// @Produce json
// @Param role query string false "Role"
// @Param active query bool false "Active flag"
// @Param q query string false "Search email, username and name"
// @Param university_id query int false "University ID (super admin only)"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} pagination.Page[UserResponse]
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	params, err := pagination.FromQuery(c)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	filter := UserFilter{Role: models.Role(c.Query("role")), Search: c.Query("q")}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			apperr.Write(c, h.logger, apperr.Invalid("active", "must be true or false"))
			return
		}
		filter.Active = &active
	}
	if raw := c.Query("university_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			apperr.Write(c, h.logger, apperr.Invalid("university_id", "must be a positive integer"))
			return
		}
		id := uint(v)
		filter.UniversityID = &id
	}

	page, err := h.svc.ListUsers(c.Request.Context(), actor, filter, params)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(page, func(u models.User) UserResponse {
		return toResponse(&u)
	}))
}

// CreateUser creates an account in the caller's university
// @Summary Create a user
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateUserInput true "User details"
// @Success 201 {object} UserResponse
// @Failure 409 {object} map[string]string "Email or username taken"
// @Security BearerAuth
// @Router /admin/users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	var req CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	user, err := h.svc.CreateUser(c.Request.Context(), actor, req)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	h.logger.Info().Uint("user_id", user.ID).Uint("by", actor.ID).Str("role", string(user.Role)).Msg("user created by admin")
	c.JSON(http.StatusCreated, toResponse(user))
}

// GetUser returns a single user
// @Summary Get a user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := userID(c)
	if !ok {
		return
	}

	user, err := h.svc.GetUser(c.Request.Context(), actor, id)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	h.detailed(c, http.StatusOK, user)
}

// UpdateUser changes a user's profile, role or active flag
// @Summary Update a user
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserInput true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 403 {object} map[string]string "Role change not allowed"
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := userID(c)
	if !ok {
		return
	}
	var req UpdateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	user, err := h.svc.UpdateUser(c.Request.Context(), actor, id, req)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	h.detailed(c, http.StatusOK, user)
}

// GetStats returns platform totals for a super admin and the caller's
// university totals for an admin
// @Summary Platform statistics
// @Tags admin
// @Produce json
// @Success 200 {object} analytics.SystemStats
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)

	var scope *uint
	if actor.Role != models.RoleSuperAdmin {
		scope = &actor.UniversityID
	}
	stats, err := h.stats.SystemStats(c.Request.Context(), scope)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	admin := rg.Group("/admin", auth.RequireAdmin())
	{
		admin.GET("/stats", h.GetStats)
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.GET("/users/:id", h.GetUser)
		admin.PUT("/users/:id", h.UpdateUser)
	}
}
