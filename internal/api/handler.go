package api

import (
	"context"
	"net/http"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the handlers call into
type Services struct {
	Accounts *service.AccountService
	Carts    *service.CartService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	Catalog  *service.CatalogService
}

// Handler contains HTTP handlers
type Handler struct {
	services  Services
	verifier  TokenVerifier
	readiness map[string]Pinger
}

// NewHandler creates a new HTTP handler. readiness names the dependencies /ready checks.
func NewHandler(services Services, verifier TokenVerifier, readiness map[string]Pinger) *Handler {
	return &Handler{
		services:  services,
		verifier:  verifier,
		readiness: readiness,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
	}

	auth := v1.Group("", authMiddleware(h.verifier))
	{
		auth.POST("/accounts", h.register)
		auth.GET("/accounts/me", h.getProfile)
		auth.PUT("/accounts/me", h.updateProfile)

		auth.GET("/cart", h.getCart)
		auth.POST("/cart/items", h.addCartItem)
		auth.PUT("/cart/items/:productId", h.setCartItem)
		auth.DELETE("/cart/items/:productId", h.removeCartItem)

		auth.POST("/checkout", h.checkout)

		auth.GET("/orders", h.listMyOrders)
		auth.GET("/orders/:orderId", h.getMyOrder)

		auth.POST("/products", h.createProduct)
		auth.PUT("/products/:id", h.updateProduct)
		auth.POST("/products/:id/restock", h.restockProduct)

		admin := auth.Group("/admin")
		admin.GET("/orders", h.listAllOrders)
		admin.GET("/accounts/:accountId/orders/:orderId", h.getAccountOrder)
		admin.PATCH("/accounts/:accountId/orders/:orderId", h.updateOrderStatus)
		admin.DELETE("/accounts/:accountId/orders/:orderId", h.deleteOrder)
		admin.PATCH("/accounts/:accountId/role", h.changeRole)
		admin.DELETE("/accounts/:accountId", h.deleteAccount)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.readiness {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, label := http.StatusOK, "ready"
	if !ready {
		status, label = http.StatusServiceUnavailable, "not_ready"
	}
	c.JSON(status, gin.H{
		"status": label,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

type profileRequest struct {
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Address   *models.Address `json:"address"`
}

func (r profileRequest) profile() service.Profile {
	return service.Profile{FirstName: r.FirstName, LastName: r.LastName, Address: r.Address}
}

type registerRequest struct {
	Email string `json:"email" binding:"required"`
	profileRequest
}

func (h *Handler) register(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.services.Accounts.Register(c.Request.Context(), caller, req.Email, req.profile())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *Handler) getProfile(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	account, err := h.services.Accounts.GetProfile(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) updateProfile(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.services.Accounts.UpdateProfile(c.Request.Context(), caller, req.profile())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) getCart(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	cart, err := h.services.Carts.Read(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cart, err := h.services.Carts.AddItem(c.Request.Context(), caller, req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) setCartItem(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cart, err := h.services.Carts.SetQuantity(c.Request.Context(), caller, c.Param("productId"), *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	cart, err := h.services.Carts.RemoveItem(c.Request.Context(), caller, c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type checkoutRequest struct {
	ShippingMethod  string          `json:"shippingMethod" binding:"required"`
	PaymentMethod   string          `json:"paymentMethod"`
	DeliveryAddress *models.Address `json:"deliveryAddress"`
	IdempotencyKey  string          `json:"idempotencyKey"`
}

func (r checkoutRequest) delivery() (models.Delivery, error) {
	method, err := models.ParseShippingMethod(r.ShippingMethod)
	if err != nil {
		return nil, err
	}
	payment, err := models.ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return nil, err
	}
	return models.NewDelivery(method, payment, r.DeliveryAddress)
}

func (h *Handler) checkout(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	delivery, err := req.delivery()
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.services.Checkout.Checkout(c.Request.Context(), caller, service.CheckoutRequest{
		Delivery:       delivery,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	orders, err := h.services.Orders.ListMine(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getMyOrder(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.services.Orders.Get(c.Request.Context(), caller, caller.AccountID, c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listAllOrders(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	orders, err := h.services.Orders.ListAll(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getAccountOrder(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.services.Orders.Get(c.Request.Context(), caller, c.Param("accountId"), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.services.Orders.UpdateStatus(c.Request.Context(), caller, c.Param("accountId"), c.Param("orderId"), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.services.Orders.Delete(c.Request.Context(), caller, c.Param("accountId"), c.Param("orderId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) changeRole(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	account, err := h.services.Accounts.ChangeRole(c.Request.Context(), caller, c.Param("accountId"), role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) deleteAccount(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.services.Accounts.Delete(c.Request.Context(), caller, c.Param("accountId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.services.Catalog.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.services.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type productRequest struct {
	ID             string            `json:"id"`
	Name           string            `json:"name" binding:"required"`
	Price          decimal.Decimal   `json:"price"`
	Category       string            `json:"category"`
	StockQuantity  int               `json:"stockQuantity"`
	MainImageURL   string            `json:"mainImageUrl"`
	Description    string            `json:"description"`
	Specifications models.Attributes `json:"specifications"`
}

func (r productRequest) product() *models.Product {
	return &models.Product{
		ID:             r.ID,
		Name:           r.Name,
		Price:          r.Price,
		Category:       r.Category,
		StockQuantity:  r.StockQuantity,
		MainImageURL:   r.MainImageURL,
		Description:    r.Description,
		Specifications: r.Specifications,
	}
}

func (h *Handler) createProduct(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.services.Catalog.Create(c.Request.Context(), caller, req.product())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p := req.product()
	p.ID = c.Param("id")

	product, err := h.services.Catalog.UpdateDetails(c.Request.Context(), caller, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type restockRequest struct {
	Amount int `json:"amount" binding:"required"`
}

func (h *Handler) restockProduct(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	stock, err := h.services.Catalog.Restock(c.Request.Context(), caller, c.Param("id"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"productId":     c.Param("id"),
		"stockQuantity": stock,
	})
}
