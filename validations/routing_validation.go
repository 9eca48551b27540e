package validations

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	domainRouting "github.com/wafilter/wafilter/domains/routing"
	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/waid"
)

// hasDigits accepts phone-ish input in any format the normalizer can strip
// down to digits.
func hasDigits(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if waid.NormalizePhone(s) == "" {
		return fmt.Errorf("must contain digits")
	}
	return nil
}

func ValidateAddContact(ctx context.Context, request domainRouting.AddContactRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, validation.By(hasDigits)),
		validation.Field(&request.Name, validation.Required),
		validation.Field(&request.LID, validation.By(hasDigits)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateUpdateContact(ctx context.Context, request domainRouting.UpdateContactRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, validation.By(hasDigits)),
		validation.Field(&request.Name, validation.Required),
		validation.Field(&request.LID, validation.By(hasDigits)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateAddGroup(ctx context.Context, request domainRouting.AddGroupRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ID, validation.Required, validation.By(hasDigits)),
		validation.Field(&request.Name, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateUpdateGroup(ctx context.Context, request domainRouting.UpdateGroupRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ID, validation.Required, validation.By(hasDigits)),
		validation.Field(&request.Name, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// ValidateSetWebhook covers the default destination, which must not be
// cleared while routing depends on it.
func ValidateSetWebhook(ctx context.Context, request domainRouting.SetWebhookRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.URL, validation.Required, is.URL),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// ValidateSetSecondaryWebhook allows an empty URL, which turns the mirror
// off.
func ValidateSetSecondaryWebhook(ctx context.Context, request domainRouting.SetWebhookRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.URL, is.URL),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSetTypeRoute(ctx context.Context, request domainRouting.SetTypeRouteRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Type, validation.Required),
		validation.Field(&request.URL, validation.Required, is.URL),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSetCustomType(ctx context.Context, request domainRouting.SetCustomTypeRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Name, validation.Required, validation.Length(1, 64)),
		validation.Field(&request.Contacts, validation.Each(validation.Required, validation.By(hasDigits))),
		validation.Field(&request.Groups, validation.Each(validation.Required, validation.By(hasDigits))),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
