// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/api/handlers"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/api/middleware"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/drive"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Rules          *service.FormulaRuleService
	Regions        *service.RegionService
	Replenishments *service.ReplenishmentService
	// Imports is optional; nil disables the import routes
	Imports *drive.Handler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services == nil {
		return router
	}

	if services.Rules != nil {
		ruleHandler := handlers.NewFormulaRuleHandler(services.Rules)
		ruleGroup := apiGroup.Group("/formula_rules")
		{
			ruleGroup.GET("", ruleHandler.List)
			ruleGroup.POST("", ruleHandler.Create)
			ruleGroup.POST("/preview", ruleHandler.PreviewDraft)
			ruleGroup.GET("/:id", ruleHandler.Get)
			ruleGroup.PUT("/:id", ruleHandler.Update)
			ruleGroup.DELETE("/:id", ruleHandler.Remove)
			ruleGroup.POST("/:id/archive", ruleHandler.Archive)
			ruleGroup.POST("/:id/restore", ruleHandler.Restore)
			ruleGroup.GET("/:id/preview", ruleHandler.Preview)
			ruleGroup.GET("/:id/yesterday_target", ruleHandler.YesterdayTarget)
		}
	}

	if services.Regions != nil {
		regionHandler := handlers.NewRegionHandler(services.Regions)
		regionGroup := apiGroup.Group("/regions")
		{
			regionGroup.GET("", regionHandler.List)
			regionGroup.POST("", regionHandler.Create)
			regionGroup.GET("/:id", regionHandler.Get)
			regionGroup.PUT("/:id", regionHandler.Update)
			regionGroup.DELETE("/:id", regionHandler.Remove)
		}
	}

	if services.Replenishments != nil {
		runHandler := handlers.NewReplenishmentHandler(services.Replenishments)
		runGroup := apiGroup.Group("/replenishments")
		{
			runGroup.GET("", runHandler.List)
			runGroup.POST("", runHandler.Create)
			runGroup.GET("/:id", runHandler.Get)
			runGroup.PUT("/:id", runHandler.Update)
			runGroup.DELETE("/:id", runHandler.Remove)
			runGroup.POST("/:id/generate", runHandler.Generate)
			runGroup.GET("/:id/transfers", runHandler.Transfers)
		}
	}

	if services.Imports != nil {
		services.Imports.RegisterRoutes(apiGroup)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
