package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	domainSend "github.com/wafilter/wafilter/domains/send"
	pkgError "github.com/wafilter/wafilter/pkg/error"
)

func ValidateSendText(ctx context.Context, request domainSend.TextRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, validation.By(hasDigits)),
		validation.Field(&request.Message, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSendMedia(ctx context.Context, request domainSend.MediaRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, validation.By(hasDigits)),
		validation.Field(&request.MimeType, validation.Required),
		validation.Field(&request.Data, validation.Required, is.Base64),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
