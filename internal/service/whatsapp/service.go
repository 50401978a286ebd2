// Package whatsapp delivers operator notifications over the WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/domain/models"
	client "github.com/mamadbah2/feria/pkg/clients/whatsapp"
)

// ErrDisabled is returned by the no-op notifier.
var ErrDisabled = errors.New("whatsapp notifications are disabled")

// Notifier pushes text notifications to operators.
type Notifier interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	client client.Client
	logger *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(c client.Client, logger *zap.Logger) *MetaWhatsAppService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetaWhatsAppService{client: c, logger: logger}
}

// SendOutbound sends a single text message. Empty messages are rejected
// before reaching the API.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("outbound message body is empty")
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	if err != nil {
		return err
	}

	s.logger.Info("outbound message sent", zap.String("to", req.To), zap.String("message_id", resp.MessageID()))
	return nil
}

// Disabled is used when WhatsApp credentials are not configured.
type Disabled struct{}

func (Disabled) SendOutbound(context.Context, models.OutboundMessageRequest) error {
	return ErrDisabled
}
