package usecase

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafilter/wafilter/config"
	domainSend "github.com/wafilter/wafilter/domains/send"
	pkgError "github.com/wafilter/wafilter/pkg/error"
)

type stubSender struct {
	textTo   string
	textBody string
	mediaTo  string
	mime     string
	data     []byte
	err      error
}

func (s *stubSender) SendText(_ context.Context, to, body string) (string, error) {
	s.textTo, s.textBody = to, body
	if s.err != nil {
		return "", s.err
	}
	return "3EB0SENT01", nil
}

func (s *stubSender) SendMedia(_ context.Context, to, _, mimeType string, data []byte) (string, error) {
	s.mediaTo, s.mime, s.data = to, mimeType, data
	if s.err != nil {
		return "", s.err
	}
	return "3EB0SENT02", nil
}

func TestSendText(t *testing.T) {
	sender := &stubSender{}
	service := NewSendService(sender)

	resp, err := service.SendText(context.Background(), domainSend.TextRequest{
		Phone:   "972501234567",
		Message: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "3EB0SENT01", resp.MessageID)
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, "972501234567", sender.textTo)
	assert.Equal(t, "hello", sender.textBody)
}

func TestSendTextValidation(t *testing.T) {
	service := NewSendService(&stubSender{})

	_, err := service.SendText(context.Background(), domainSend.TextRequest{Phone: "", Message: "hello"})
	assert.Error(t, err)

	_, err = service.SendText(context.Background(), domainSend.TextRequest{Phone: "972501234567", Message: ""})
	assert.Error(t, err)
}

func TestSendTextWithoutClient(t *testing.T) {
	service := NewSendService(nil)

	_, err := service.SendText(context.Background(), domainSend.TextRequest{Phone: "972501234567", Message: "hello"})
	assert.Error(t, err)
}

func TestSendMediaDecodesPayload(t *testing.T) {
	sender := &stubSender{}
	service := NewSendService(sender)

	raw := []byte("pretend these are jpeg bytes")
	resp, err := service.SendMedia(context.Background(), domainSend.MediaRequest{
		Phone:    "972501234567",
		Caption:  "look",
		MimeType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(raw),
	})
	require.NoError(t, err)
	assert.Equal(t, "3EB0SENT02", resp.MessageID)
	assert.Equal(t, raw, sender.data)
	assert.Equal(t, "image/jpeg", sender.mime)
}

func TestSendMediaRejectsBadBase64(t *testing.T) {
	service := NewSendService(&stubSender{})

	_, err := service.SendMedia(context.Background(), domainSend.MediaRequest{
		Phone:    "972501234567",
		MimeType: "image/jpeg",
		Data:     "%%% definitely not base64 %%%",
	})
	assert.Error(t, err)
}

func TestSendMediaRejectsOversizedPayload(t *testing.T) {
	prev := config.MediaMaxBytes
	config.MediaMaxBytes = 16
	t.Cleanup(func() { config.MediaMaxBytes = prev })

	sender := &stubSender{}
	service := NewSendService(sender)

	_, err := service.SendMedia(context.Background(), domainSend.MediaRequest{
		Phone:    "972501234567",
		MimeType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(make([]byte, 32)),
	})
	require.ErrorIs(t, err, pkgError.ErrMediaTooLarge)
	assert.Nil(t, sender.data)
}
