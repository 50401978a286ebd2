package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/feria/internal/domain/models"
	client "github.com/mamadbah2/feria/pkg/clients/whatsapp"
)

type fakeClient struct {
	sent []client.SendTextMessageRequest
	err  error
}

func (f *fakeClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &client.SendTextMessageResponse{}, nil
}

func TestSendOutbound(t *testing.T) {
	fc := &fakeClient{}
	svc := NewMetaWhatsAppService(fc, nil)

	err := svc.SendOutbound(context.Background(), models.OutboundMessageRequest{To: "569", Message: "Report"})
	require.NoError(t, err)
	require.Len(t, fc.sent, 1)
	assert.Equal(t, "569", fc.sent[0].To)
	assert.Equal(t, "Report", fc.sent[0].Body)
}

func TestSendOutboundRejectsEmptyBody(t *testing.T) {
	fc := &fakeClient{}
	err := NewMetaWhatsAppService(fc, nil).SendOutbound(context.Background(), models.OutboundMessageRequest{To: "569", Message: "  "})
	assert.Error(t, err)
	assert.Empty(t, fc.sent)
}

func TestSendOutboundPropagatesClientError(t *testing.T) {
	boom := errors.New("boom")
	err := NewMetaWhatsAppService(&fakeClient{err: boom}, nil).SendOutbound(context.Background(), models.OutboundMessageRequest{To: "1", Message: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestDisabled(t *testing.T) {
	assert.ErrorIs(t, Disabled{}.SendOutbound(context.Background(), models.OutboundMessageRequest{}), ErrDisabled)
}
