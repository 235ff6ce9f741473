package handler

import (
	"clubexpense/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// multipart 表单的内存上限与领收书大小上限一致
	if cfg.Business.MaxReceiptBytes > 0 {
		r.MaxMultipartMemory = cfg.Business.MaxReceiptBytes + 1<<20
	}

	api := r.Group("/api/v1", AuthMiddleware(&cfg.Auth))
	{
		api.GET("/clubs", h.ListClubs)
		api.POST("/setup", h.Setup)
		api.GET("/dashboard", h.Dashboard)

		requests := api.Group("/requests")
		{
			requests.POST("", h.CreateRequest)
			requests.GET("/:id", h.GetRequest)
			requests.POST("/:id/resubmit", h.ResubmitRequest)
			requests.POST("/:id/approve", h.ApproveRequest)
			requests.POST("/:id/reject", h.RejectRequest)
		}

		admin := api.Group("/admin")
		{
			admin.GET("/clubs", h.AdminClubs)
			admin.GET("/clubs/:id", h.AdminClubDetail)
			admin.GET("/pending", h.AdminPending)
			admin.GET("/requests", h.AdminSearch)
			admin.GET("/requests/export", h.AdminExport)
			admin.GET("/requests/:id", h.AdminRequestDetail)
			admin.GET("/requests/:id/slip", h.AdminSlip)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
