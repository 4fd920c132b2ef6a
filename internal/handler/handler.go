package handler

import (
	"strconv"

	"marketplace/internal/model"
	"marketplace/internal/service"
	"marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

// Services 处理器依赖的全部服务
type Services struct {
	Products    *service.ProductService
	Attribution *service.AttributionService
	Carts       *service.CartService
	Checkout    *service.CheckoutService
	Settlement  *service.SettlementService
	Withdrawals *service.WithdrawalService
	Wallets     *service.WalletService
}

// Handler 统一处理器
type Handler struct {
	products    *service.ProductService
	attribution *service.AttributionService
	carts       *service.CartService
	checkout    *service.CheckoutService
	settlement  *service.SettlementService
	withdrawals *service.WithdrawalService
	wallets     *service.WalletService
}

func NewHandler(s Services) *Handler {
	return &Handler{
		products:    s.Products,
		attribution: s.Attribution,
		carts:       s.Carts,
		checkout:    s.Checkout,
		settlement:  s.Settlement,
		withdrawals: s.Withdrawals,
		wallets:     s.Wallets,
	}
}

func paramInt64(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 商品
// ============================================================

// ListProducts 已上架商品
// GET /api/v1/products
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.products.ListApproved(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, products)
}

// GetProduct GET /api/v1/products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	product, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, product)
}

// CreateProduct 商家发布商品
// POST /api/v1/vendor/products
func (h *Handler) CreateProduct(c *gin.Context) {
	var req service.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	product, err := h.products.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, product)
}

type SetProductStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetProductStatus 管理员审核商品
// PUT /api/v1/admin/products/:id/status
func (h *Handler) SetProductStatus(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	var req SetProductStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	product, err := h.products.SetStatus(c.Request.Context(), actorFrom(c), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, product)
}

// ============================================================
// 推广链接
// ============================================================

type CreateLinkRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
}

// CreateLink POST /api/v1/affiliate/links
func (h *Handler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	link, err := h.attribution.CreateLink(c.Request.Context(), actorFrom(c), req.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, link)
}

// ListLinks GET /api/v1/affiliate/links
func (h *Handler) ListLinks(c *gin.Context) {
	links, err := h.attribution.ListLinks(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, links)
}

// DeactivateLink DELETE /api/v1/affiliate/links/:id
func (h *Handler) DeactivateLink(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	link, err := h.attribution.Deactivate(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, link)
}

// TrackClick 推广链接落地页，记录点击并返回商品
// GET /r/:code
func (h *Handler) TrackClick(c *gin.Context) {
	link, err := h.attribution.RecordClick(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"code":       link.Code,
		"product_id": link.ProductID,
	})
}

// ============================================================
// 购物车与下单
// ============================================================

// GetCart GET /api/v1/carts/:cart_id
func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.carts.Get(c.Request.Context(), c.Param("cart_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"cart":         cart,
		"total_amount": cart.TotalAmount(),
	})
}

type AddCartLineRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int64 `json:"quantity" binding:"required,gt=0"`
}

// AddCartLine POST /api/v1/carts/:cart_id/lines
func (h *Handler) AddCartLine(c *gin.Context) {
	var req AddCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	cart, err := h.carts.AddLine(c.Request.Context(), c.Param("cart_id"), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cart)
}

// RemoveCartLine DELETE /api/v1/carts/:cart_id/lines/:product_id
func (h *Handler) RemoveCartLine(c *gin.Context) {
	productID, ok := paramInt64(c, "product_id")
	if !ok {
		return
	}
	cart, err := h.carts.RemoveLine(c.Request.Context(), c.Param("cart_id"), productID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cart)
}

type AttachReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// AttachReferral PUT /api/v1/carts/:cart_id/referral
func (h *Handler) AttachReferral(c *gin.Context) {
	var req AttachReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	cart, err := h.carts.AttachReferral(c.Request.Context(), c.Param("cart_id"), req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cart)
}

type CheckoutRequest struct {
	Customer     service.Customer `json:"customer"`
	ReferralCode string           `json:"referral_code"`
}

// Checkout 下单
// POST /api/v1/carts/:cart_id/checkout?ref=xxx
//
// 结算未完成（partial）时订单已经创建，对顾客仍然返回成功
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.ReferralCode == "" {
		req.ReferralCode = c.Query("ref")
	}

	result, err := h.checkout.Checkout(c.Request.Context(), c.Param("cart_id"), req.Customer, req.ReferralCode)
	if err != nil {
		writeError(c, err)
		return
	}

	order := result.Order
	settlement := model.SettlementStatusSettled
	if result.Partial {
		settlement = model.SettlementStatusPartial
	}
	response.Success(c, gin.H{
		"order_no":     order.OrderNo,
		"status":       order.Status,
		"total_amount": order.TotalAmount,
		"items":        order.Items,
		"settlement":   settlement,
	})
}

// ============================================================
// 钱包与提现
// ============================================================

// GetWallet GET /api/v1/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	profile, err := h.wallets.GetWallet(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id":        profile.ID,
		"wallet_balance": profile.WalletBalance,
	})
}

// ListTransactions GET /api/v1/wallet/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.wallets.ListTransactions(c.Request.Context(), actorFrom(c), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// AuditWallet 余额与流水对账
// GET /api/v1/wallet/audit?user_id=xxx
func (h *Handler) AuditWallet(c *gin.Context) {
	actor := actorFrom(c)
	userID := actor.UserID
	if s := c.Query("user_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			response.ParamError(c, "user_id 参数错误")
			return
		}
		userID = id
	}

	audit, err := h.wallets.Audit(c.Request.Context(), actor, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, audit)
}

// RequestWithdrawal POST /api/v1/wallet/withdrawals
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req service.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	w, err := h.withdrawals.Request(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, w)
}

// ListWithdrawals GET /api/v1/wallet/withdrawals
func (h *Handler) ListWithdrawals(c *gin.Context) {
	list, err := h.withdrawals.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

type ReviewRequest struct {
	Note string `json:"note"`
}

// ApproveWithdrawal POST /api/v1/admin/withdrawals/:withdrawal_no/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	var req ReviewRequest
	_ = c.ShouldBindJSON(&req)

	w, err := h.withdrawals.Approve(c.Request.Context(), actorFrom(c), c.Param("withdrawal_no"), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, w)
}

// RejectWithdrawal POST /api/v1/admin/withdrawals/:withdrawal_no/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	var req ReviewRequest
	_ = c.ShouldBindJSON(&req)

	w, err := h.withdrawals.Reject(c.Request.Context(), actorFrom(c), c.Param("withdrawal_no"), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, w)
}

// ReconcileOrder 手动触发对账
// POST /api/v1/admin/orders/:order_no/reconcile
func (h *Handler) ReconcileOrder(c *gin.Context) {
	if !actorFrom(c).IsAdmin() {
		writeError(c, service.ErrForbidden)
		return
	}

	result, err := h.settlement.Reconcile(c.Request.Context(), c.Param("order_no"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}
