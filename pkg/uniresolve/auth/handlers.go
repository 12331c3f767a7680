package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// Handler handles authentication requests
type Handler struct {
	db     *gorm.DB
	tokens *TokenManager
	logger zerolog.Logger
}

// NewHandler creates a new auth handler
func NewHandler(db *gorm.DB, tokens *TokenManager, logger zerolog.Logger) *Handler {
	return &Handler{db: db, tokens: tokens, logger: logger}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Username     string `json:"username" binding:"required,min=3,max=50"`
	FullName     string `json:"full_name" binding:"required"`
	Password     string `json:"password" binding:"required,min=8"`
	UniversityID uint   `json:"university_id" binding:"required"`
	DepartmentID *uint  `json:"department_id"`
	StudentID    string `json:"student_id"`
	Phone        string `json:"phone"`
}

// LoginRequest represents the login request body. Username may also be the
// account's email address.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int          `json:"expires_in"`
	User      UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID           uint   `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	UniversityID uint   `json:"university_id"`
	DepartmentID *uint  `json:"department_id,omitempty"`
	IsActive     bool   `json:"is_active"`
	IsVerified   bool   `json:"is_verified"`
	LastLoginAt  string `json:"last_login_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// MeResponse adds the caller's own complaint counts
type MeResponse struct {
	UserResponse
	TotalComplaints    int64 `json:"total_complaints"`
	ResolvedComplaints int64 `json:"resolved_complaints"`
}

// ToUserResponse renders a user without credentials
func ToUserResponse(user *models.User) UserResponse {
	resp := UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		FullName:     user.FullName,
		Role:         string(user.Role),
		UniversityID: user.UniversityID,
		DepartmentID: user.DepartmentID,
		IsActive:     user.IsActive,
		IsVerified:   user.IsVerified,
		CreatedAt:    user.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if user.LastLoginAt != nil {
		resp.LastLoginAt = user.LastLoginAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func (h *Handler) authResponse(user *models.User) (AuthResponse, error) {
	token, err := h.tokens.Generate(user)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(h.tokens.TTL().Seconds()),
		User:      ToUserResponse(user),
	}, nil
}

// Register handles self-service registration. New accounts are always
// students; other roles are granted by an admin.
// @Summary Register a new user
// @Description Create a student account in an active university and receive a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} AuthResponse
// @Failure 422 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]string "Email or username already registered"
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	var university models.University
	if err := h.db.First(&university, req.UniversityID).Error; err != nil || !university.IsActive {
		apperr.Write(c, h.logger, apperr.Invalid("university_id", "unknown or inactive university"))
		return
	}

	if req.DepartmentID != nil {
		var dept models.Department
		if err := h.db.Where("id = ? AND university_id = ?", *req.DepartmentID, university.ID).First(&dept).Error; err != nil {
			apperr.Write(c, h.logger, apperr.Invalid("department_id", "department does not belong to this university"))
			return
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Check if email or username already exists
	var existing models.User
	if err := h.db.Where("email = ?", email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}
	if err := h.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user := models.User{
		Email:        email,
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: hashedPassword,
		Role:         models.RoleStudent,
		UniversityID: university.ID,
		DepartmentID: req.DepartmentID,
		StudentID:    req.StudentID,
		Phone:        req.Phone,
	}

	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email or username already registered"})
			return
		}
		apperr.Write(c, h.logger, err)
		return
	}

	resp, err := h.authResponse(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.logger.Info().Uint("user_id", user.ID).Uint("university_id", user.UniversityID).Msg("user registered")
	c.JSON(http.StatusCreated, resp)
}

// Login handles user login
// @Summary Login
// @Description Authenticate with username (or email) and password to receive a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 403 {object} map[string]string "Account is disabled"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	var user models.User
	login := strings.TrimSpace(req.Username)
	if err := h.db.Where("username = ? OR email = ?", login, strings.ToLower(login)).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if !CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	now := time.Now()
	if err := h.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		h.logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record last login")
	}
	user.LastLoginAt = &now

	resp, err := h.authResponse(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me returns the current authenticated user
// @Summary Get current user
// @Description Get the authenticated user's profile and complaint counts
// @Tags auth
// @Produce json
// @Success 200 {object} MeResponse
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var total, resolved int64
	h.db.Model(&models.Complaint{}).Where("complainant_id = ?", user.ID).Count(&total)
	h.db.Model(&models.Complaint{}).
		Where("complainant_id = ? AND status IN ?", user.ID, []models.ComplaintStatus{models.StatusResolved, models.StatusClosed}).
		Count(&resolved)

	c.JSON(http.StatusOK, MeResponse{
		UserResponse:       ToUserResponse(user),
		TotalComplaints:    total,
		ResolvedComplaints: resolved,
	})
}

// Logout handles user logout (client-side token invalidation)
// @Summary Logout
// @Description Logout the current user (client-side token invalidation)
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out successfully"
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", AuthMiddleware(h.tokens, h.db), h.Me)
}
