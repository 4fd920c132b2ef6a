package handler

import (
	"net/http"

	"marketplace/internal/config"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由，metrics 为 nil 时不暴露 /metrics
func SetupRouter(h *Handler, cfg *config.Config, metrics http.Handler) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	auth := AuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer)

	// 推广落地页
	r.GET("/r/:code", h.TrackClick)

	api := r.Group("/api/v1", auth)
	{
		products := api.Group("/products")
		{
			products.GET("", h.ListProducts)
			products.GET("/:id", h.GetProduct)
		}

		carts := api.Group("/carts/:cart_id")
		{
			carts.GET("", h.GetCart)
			carts.POST("/lines", h.AddCartLine)
			carts.DELETE("/lines/:product_id", h.RemoveCartLine)
			carts.PUT("/referral", h.AttachReferral)
			carts.POST("/checkout", h.Checkout)
		}

		vendor := api.Group("/vendor")
		{
			vendor.POST("/products", h.CreateProduct)
		}

		affiliate := api.Group("/affiliate")
		{
			affiliate.POST("/links", h.CreateLink)
			affiliate.GET("/links", h.ListLinks)
			affiliate.DELETE("/links/:id", h.DeactivateLink)
		}

		wallet := api.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.GET("/audit", h.AuditWallet)
			wallet.POST("/withdrawals", h.RequestWithdrawal)
			wallet.GET("/withdrawals", h.ListWithdrawals)
		}

		admin := api.Group("/admin")
		{
			admin.PUT("/products/:id/status", h.SetProductStatus)
			admin.POST("/withdrawals/:withdrawal_no/approve", h.ApproveWithdrawal)
			admin.POST("/withdrawals/:withdrawal_no/reject", h.RejectWithdrawal)
			admin.POST("/orders/:order_no/reconcile", h.ReconcileOrder)
		}
	}

	return r
}
