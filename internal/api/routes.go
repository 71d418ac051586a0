package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/cctalk-host/internal/api/middleware"
	"github.com/taoyao-code/cctalk-host/internal/config"
)

// RegisterRoutes 注册控制 API 路由（/api 组）
func RegisterRoutes(r *gin.Engine, h *Handler, cfg config.APIConfig, logger *zap.Logger) {
	if r == nil || h == nil || h.sess == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api")
	api.Use(middleware.RequestID(), middleware.CORS())
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.RatePerSec, cfg.RateLimit.Burst), logger))
	}
	if cfg.Auth.Enabled {
		api.Use(middleware.APIKeyAuth(cfg.Auth, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/headers", h.ListHeaders)
	api.GET("/ports", h.ListPorts)

	// 会话
	api.GET("/session", h.GetSession)
	api.PUT("/session", h.UpdateSession)
	api.POST("/commands", h.SendCommand)

	// 扫描与设备
	api.POST("/scan", h.Scan)
	api.GET("/devices", h.ListDevices)

	// 后台轮询
	endpoints := 7
	if h.poller != nil {
		api.POST("/poll", h.StartPoll)
		api.DELETE("/poll", h.StopPoll)
		api.GET("/poll", h.GetPoll)
		api.GET("/poll/stream", h.StreamPoll)
		endpoints += 4
	}

	logger.Info("api routes registered", zap.Int("endpoints", endpoints))
}
