package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/domain/models"
)

// FairAdmin is the lifecycle surface reserved to admins.
type FairAdmin interface {
	ConfigureActive(ctx context.Context, cfg models.FeriaConfig) error
	Archive(ctx context.Context) (models.HistoricalFeria, error)
	History(ctx context.Context) ([]models.HistoricalFeria, error)
	HistoryByID(ctx context.Context, id string) (models.HistoricalFeria, error)
	ActivateByID(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// AdminHandler serves fair lifecycle endpoints.
type AdminHandler struct {
	fairs  FairAdmin
	logger *zap.Logger
}

func NewAdminHandler(fairs FairAdmin, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{fairs: fairs, logger: logger}
}

// historyItem is the list view of a record; sales are only returned by Get.
type historyItem struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	DateStart  time.Time            `json:"dateStart"`
	ArchivedAt time.Time            `json:"archivedAt"`
	Status     models.ArchiveStatus `json:"status"`
	Report     models.ReportSummary `json:"reportSummary"`
}

func (h *AdminHandler) ConfigureActive(c *gin.Context) {
	var cfg models.FeriaConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, h.logger, bindingError(err))
		return
	}
	if err := h.fairs.ConfigureActive(c.Request.Context(), cfg); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("feria configured", zap.String("feria", cfg.Name), zap.String("operator", operatorID(c)))
	c.JSON(http.StatusOK, cfg)
}

func (h *AdminHandler) Archive(c *gin.Context) {
	record, err := h.fairs.Archive(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("feria archived", zap.String("history_id", record.ID), zap.String("operator", operatorID(c)))
	c.JSON(http.StatusOK, record)
}

func (h *AdminHandler) ListHistory(c *gin.Context) {
	records, err := h.fairs.History(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	items := make([]historyItem, 0, len(records))
	for _, r := range records {
		items = append(items, historyItem{
			ID:         r.ID,
			Name:       r.Config.Name,
			DateStart:  r.Config.DateStart,
			ArchivedAt: r.ArchivedAt,
			Status:     r.Status,
			Report:     r.Report,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *AdminHandler) GetHistory(c *gin.Context) {
	record, err := h.fairs.HistoryByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *AdminHandler) Activate(c *gin.Context) {
	id := c.Param("id")
	if err := h.fairs.ActivateByID(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("feria activated", zap.String("history_id", id), zap.String("operator", operatorID(c)))
	c.JSON(http.StatusOK, gin.H{"status": "activated", "id": id})
}

func (h *AdminHandler) DeleteHistory(c *gin.Context) {
	if err := h.fairs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
