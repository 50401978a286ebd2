package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/service/ledger"
)

// Ledger is the slice of the sale ledger the HTTP layer drives.
type Ledger interface {
	RecordSale(ctx context.Context, sale models.Sale) (ledger.Receipt, error)
	SetConnectivity(ctx context.Context, state ledger.Connectivity) error
	Status() ledger.Status
	Pending() []models.Sale
}

// FairReader exposes the active fair to selling operators.
type FairReader interface {
	State(ctx context.Context) (models.FairState, error)
	CurrentConfig(ctx context.Context) (models.FeriaConfig, error)
	ActiveConfig(ctx context.Context) (models.FeriaConfig, error)
	LiveReport(ctx context.Context) (models.LiveReport, error)
}

// SalesHandler serves the operator endpoints.
type SalesHandler struct {
	ledger Ledger
	fairs  FairReader
	now    func() time.Time
	logger *zap.Logger
}

// NewSalesHandler constructs the HTTP handler adapter.
func NewSalesHandler(l Ledger, fairs FairReader, logger *zap.Logger) *SalesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SalesHandler{ledger: l, fairs: fairs, now: time.Now, logger: logger}
}

type saleItemRequest struct {
	Style    string `json:"style" binding:"required"`
	Unit     string `json:"unit" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

type recordSaleRequest struct {
	Items         []saleItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod string            `json:"paymentMethod" binding:"required"`
}

type connectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type statusResponse struct {
	Connectivity ledger.Connectivity `json:"connectivity"`
	Pending      int                 `json:"pending"`
	Phase        string              `json:"phase"`
	Feria        string              `json:"feria,omitempty"`
}

// RecordSale prices the cart with the current config and hands it to the
// ledger. 201 means the sale reached the store, 202 that it was queued.
func (h *SalesHandler) RecordSale(c *gin.Context) {
	var req recordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, bindingError(err))
		return
	}

	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %v", models.ErrInvalidSale, err))
		return
	}

	items := make([]models.SaleItem, 0, len(req.Items))
	for _, it := range req.Items {
		unit, err := models.ParseUnit(it.Unit)
		if err != nil {
			writeError(c, h.logger, fmt.Errorf("%w: %v", models.ErrInvalidSale, err))
			return
		}
		items = append(items, models.SaleItem{Style: it.Style, Unit: unit, Quantity: it.Quantity})
	}

	ctx := c.Request.Context()
	cfg, err := h.fairs.CurrentConfig(ctx)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	sale, err := ledger.BuildSale(cfg, items, method, operatorID(c), h.now())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	receipt, err := h.ledger.RecordSale(ctx, sale)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if receipt.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, receipt)
}

func (h *SalesHandler) PendingSales(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sales": h.ledger.Pending()})
}

// Status reports connectivity, queue depth and fair phase. The phase is
// "unknown" while the store cannot be reached.
func (h *SalesHandler) Status(c *gin.Context) {
	ls := h.ledger.Status()
	resp := statusResponse{Connectivity: ls.Connectivity, Pending: ls.Pending, Phase: "unknown"}

	state, err := h.fairs.State(c.Request.Context())
	if err != nil {
		h.logger.Debug("fair state unavailable", zap.Error(err))
	} else {
		resp.Phase = string(state.Phase)
		if state.Active() {
			resp.Feria = state.Config.Name
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SetConnectivity receives the environment's connectivity signal.
func (h *SalesHandler) SetConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, bindingError(err))
		return
	}

	state := ledger.Offline
	if *req.Online {
		state = ledger.Online
	}
	if err := h.ledger.SetConnectivity(c.Request.Context(), state); err != nil {
		// the transition was applied; the drain stopped early
		h.logger.Warn("drain after reconnect failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, h.ledger.Status())
}

func (h *SalesHandler) ActiveFeria(c *gin.Context) {
	cfg, err := h.fairs.ActiveConfig(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *SalesHandler) LiveReport(c *gin.Context) {
	report, err := h.fairs.LiveReport(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
