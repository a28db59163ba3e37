package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/jmerrifield20/SupplyChainLedger/internal/query"
	"github.com/jmerrifield20/SupplyChainLedger/internal/tracking"
)

// trackingSvc is satisfied by *tracking.Service.
type trackingSvc interface {
	CreateProduct(ctx context.Context, actor tracking.Actor, in tracking.CreateProductInput) (*ledger.Record, error)
	RecordTransfer(ctx context.Context, actor tracking.Actor, in tracking.TransferInput) (*ledger.Record, error)
	ConfirmDelivery(ctx context.Context, actor tracking.Actor, in tracking.DeliveryInput) (*ledger.Record, error)
}

// projector is satisfied by *query.Engine.
type projector interface {
	JourneyView(subjectID string) []query.DisplayRecord
	LatestState(subjectID string) (*query.Summary, bool)
	Products() []query.ProductOverview
}

// ProductHandler serves the product write and read endpoints.
type ProductHandler struct {
	tracking trackingSvc
	views    projector
	sessions *identity.SessionIssuer
	onAppend func()
	logger   *zap.Logger
}

// NewProductHandler creates a ProductHandler. onAppend, if non-nil, runs
// after every successful write.
func NewProductHandler(svc trackingSvc, views projector, sessions *identity.SessionIssuer, onAppend func(), logger *zap.Logger) *ProductHandler {
	return &ProductHandler{tracking: svc, views: views, sessions: sessions, onAppend: onAppend, logger: logger}
}

// Register mounts the product routes on the given router group.
func (h *ProductHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/products")
	{
		p.GET("", h.List)
		p.GET("/:id/journey", h.Journey)
		p.GET("/:id/summary", h.Summary)

		authed := p.Group("", identity.RequireSession(h.sessions))
		authed.POST("", h.Create)
		authed.POST("/:id/transfers", h.Transfer)
		authed.POST("/:id/deliveries", h.Deliver)
	}
}

type createProductRequest struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Location      string `json:"location"`
	PaymentMethod string `json:"payment_method"`
}

type transferRequest struct {
	Location      string `json:"location"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`
}

type deliveryRequest struct {
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
}

func actorFrom(c *gin.Context) tracking.Actor {
	p, _ := identity.PrincipalFromCtx(c)
	return tracking.Actor{Role: p.Role, Name: p.Name}
}

func (h *ProductHandler) written(c *gin.Context, rec *ledger.Record) {
	if h.onAppend != nil {
		h.onAppend()
	}
	c.JSON(http.StatusCreated, rec)
}

// Create handles POST /products. A producer registers a new product.
func (h *ProductHandler) Create(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.tracking.CreateProduct(c.Request.Context(), actorFrom(c), tracking.CreateProductInput{
		ProductID:     req.ProductID,
		ProductName:   req.ProductName,
		Location:      req.Location,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.written(c, rec)
}

// Transfer handles POST /products/:id/transfers. An intermediary hand-off.
func (h *ProductHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	rec, err := h.tracking.RecordTransfer(c.Request.Context(), actorFrom(c), tracking.TransferInput{
		ProductID:     c.Param("id"),
		Location:      req.Location,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.written(c, rec)
}

// Deliver handles POST /products/:id/deliveries. The consumer confirms.
func (h *ProductHandler) Deliver(c *gin.Context) {
	var req deliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	rec, err := h.tracking.ConfirmDelivery(c.Request.Context(), actorFrom(c), tracking.DeliveryInput{
		ProductID:     c.Param("id"),
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.written(c, rec)
}

// List handles GET /products.
func (h *ProductHandler) List(c *gin.Context) {
	products := h.views.Products()
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// Journey handles GET /products/:id/journey. An unknown product has an empty
// journey, not an error.
func (h *ProductHandler) Journey(c *gin.Context) {
	id := c.Param("id")
	records := h.views.JourneyView(id)
	c.JSON(http.StatusOK, gin.H{"product_id": id, "records": records, "count": len(records)})
}

// Summary handles GET /products/:id/summary.
func (h *ProductHandler) Summary(c *gin.Context) {
	sum, ok := h.views.LatestState(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data found for product"})
		return
	}
	c.JSON(http.StatusOK, sum)
}
