package usecase

import (
	"context"
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/config"
	domainSend "github.com/wafilter/wafilter/domains/send"
	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/waid"
	"github.com/wafilter/wafilter/validations"
)

// MessageSender is the outbound slice of the WhatsApp adapter. Nil when the
// embedded client is disabled.
type MessageSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendMedia(ctx context.Context, to, caption, mimeType string, data []byte) (string, error)
}

type serviceSend struct {
	sender MessageSender
}

func NewSendService(sender MessageSender) domainSend.ISendUsecase {
	return &serviceSend{sender: sender}
}

func (service serviceSend) SendText(ctx context.Context, request domainSend.TextRequest) (domainSend.GenericResponse, error) {
	if err := validations.ValidateSendText(ctx, request); err != nil {
		return domainSend.GenericResponse{}, err
	}
	if service.sender == nil {
		return domainSend.GenericResponse{}, pkgError.ValidationError("whatsapp client is disabled")
	}

	id, err := service.sender.SendText(ctx, request.Phone, request.Message)
	if err != nil {
		return domainSend.GenericResponse{}, err
	}

	logrus.Infof("[SEND] text to %s (%s)", waid.NormalizePhone(request.Phone), id)
	return domainSend.GenericResponse{MessageID: id, Status: "sent"}, nil
}

func (service serviceSend) SendMedia(ctx context.Context, request domainSend.MediaRequest) (domainSend.GenericResponse, error) {
	if err := validations.ValidateSendMedia(ctx, request); err != nil {
		return domainSend.GenericResponse{}, err
	}
	if service.sender == nil {
		return domainSend.GenericResponse{}, pkgError.ValidationError("whatsapp client is disabled")
	}

	data, err := base64.StdEncoding.DecodeString(request.Data)
	if err != nil {
		return domainSend.GenericResponse{}, pkgError.ValidationError("data is not valid base64")
	}
	if int64(len(data)) > config.MediaMaxBytes {
		return domainSend.GenericResponse{}, pkgError.ErrMediaTooLarge
	}

	id, err := service.sender.SendMedia(ctx, request.Phone, request.Caption, request.MimeType, data)
	if err != nil {
		return domainSend.GenericResponse{}, err
	}

	logrus.Infof("[SEND] %s media to %s (%s, %d bytes)",
		request.MimeType, waid.NormalizePhone(request.Phone), id, len(data))
	return domainSend.GenericResponse{MessageID: id, Status: "sent"}, nil
}
