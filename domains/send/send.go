package send

import "context"

type TextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type MediaRequest struct {
	Phone    string `json:"phone"`
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type GenericResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type ISendUsecase interface {
	SendText(ctx context.Context, request TextRequest) (GenericResponse, error)
	SendMedia(ctx context.Context, request MediaRequest) (GenericResponse, error)
}
