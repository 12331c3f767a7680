// Package server assembles the HTTP API.
package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/admin"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/analytics"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/complaints"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/export"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/files"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/logging"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/notify"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/universities"

	_ "github.com/uniresolve/uniresolve/api/swagger"
)

// Deps are the collaborators the router is built from. Dispatcher may be
// nil, in which case lifecycle events produce no notifications.
type Deps struct {
	DB         *gorm.DB
	Tokens     *auth.TokenManager
	Store      files.Store
	Dispatcher *notify.Dispatcher
	Logger     zerolog.Logger
}

var registerOnce sync.Once

// registerValidator makes gin's binding errors name fields by their json
// tag, matching service-level validation.
func registerValidator() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(apperr.JSONTagName)
		}
	})
}

// NewRouter returns a gin engine with every route registered under /api/v1.
func NewRouter(deps Deps) *gin.Engine {
	registerValidator()

	r := gin.New()
	r.Use(logging.Recovery(deps.Logger), logging.RequestLogger(deps.Logger))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "service": "uniresolve"})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var notifier complaints.Notifier
	if deps.Dispatcher != nil {
		notifier = deps.Dispatcher
	}
	complaintSvc := complaints.NewService(deps.DB, notifier, deps.Store, deps.Logger.With().Str("component", "complaints").Logger())
	stats := analytics.NewService(deps.DB)
	uniHandler := universities.NewHandler(universities.NewService(deps.DB), deps.Logger)

	api := r.Group("/api/v1")
	{
		// Public routes
		auth.NewHandler(deps.DB, deps.Tokens, deps.Logger).RegisterRoutes(api.Group("/auth"))
		uniHandler.RegisterPublicRoutes(api)

		protected := api.Group("", auth.AuthMiddleware(deps.Tokens, deps.DB))
		uniHandler.RegisterRoutes(protected)
		admin.NewHandler(admin.NewService(deps.DB), stats, deps.Logger).RegisterRoutes(protected)
		complaints.NewHandler(complaintSvc, deps.Logger).RegisterRoutes(protected)
		analytics.NewHandler(stats, deps.Logger).RegisterRoutes(protected)
		notify.NewHandler(deps.DB, deps.Logger).RegisterRoutes(protected)
		export.NewHandler(complaintSvc, deps.Logger).RegisterRoutes(protected)
	}

	return r
}
