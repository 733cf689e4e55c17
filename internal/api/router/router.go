package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/config"
	"github.com/Teskh/production-sub001/internal/api/handler"
	"github.com/Teskh/production-sub001/internal/api/middleware"
	"github.com/Teskh/production-sub001/pkg/jwt"
	"github.com/Teskh/production-sub001/pkg/redis"
)

const (
	maxBodyBytes      = 64 << 10 // 64KB
	computeRateLimit  = 10
	computeRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
// gatherer 为 nil 时 /metrics 使用默认注册表
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, rdb))
	{
		// 班次估算模块
		shifts := v1.Group("/shift-estimates")
		{
			shifts.POST("/compute",
				middleware.RoleAuth("admin"),
				middleware.RateLimit(rdb, computeRateLimit, computeRateWindow),
				h.ShiftEstimate.Compute,
			)
			shifts.GET("/day/:date", h.ShiftEstimate.GetDay)
			shifts.GET("/coverage", h.ShiftEstimate.GetCoverage)
		}

		// 导出模块
		export := v1.Group("/export")
		{
			export.GET("/shift-estimates", middleware.RoleAuth("admin", "supervisor"), h.Export.ExportShiftEstimates)
		}
	}

	return r
}
