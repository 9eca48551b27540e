package usecase

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	domainRouting "github.com/wafilter/wafilter/domains/routing"
	"github.com/wafilter/wafilter/infrastructure/storage"
	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/waid"
	"github.com/wafilter/wafilter/validations"
)

type serviceRouting struct {
	store *storage.ConfigStore
}

func NewRoutingService(store *storage.ConfigStore) domainRouting.IRoutingUsecase {
	return &serviceRouting{store: store}
}

func (service serviceRouting) Contacts(_ context.Context) ([]domainRouting.Contact, error) {
	return service.store.Contacts(), nil
}

func (service serviceRouting) AddContact(ctx context.Context, request domainRouting.AddContactRequest) (domainRouting.Contact, error) {
	if err := validations.ValidateAddContact(ctx, request); err != nil {
		return domainRouting.Contact{}, err
	}

	contact := domainRouting.Contact{
		Phone: waid.NormalizePhone(request.Phone),
		Name:  strings.TrimSpace(request.Name),
		LID:   waid.NormalizePhone(request.LID),
	}
	if err := service.store.AddContact(contact); err != nil {
		return domainRouting.Contact{}, err
	}

	logrus.Infof("[CONFIG] contact %s (%s) added", contact.Name, contact.Phone)
	return contact, nil
}

func (service serviceRouting) UpdateContact(ctx context.Context, request domainRouting.UpdateContactRequest) (domainRouting.Contact, error) {
	if err := validations.ValidateUpdateContact(ctx, request); err != nil {
		return domainRouting.Contact{}, err
	}

	contact := domainRouting.Contact{
		Phone: waid.NormalizePhone(request.Phone),
		Name:  strings.TrimSpace(request.Name),
		LID:   waid.NormalizePhone(request.LID),
	}
	if err := service.store.UpdateContact(contact.Phone, contact); err != nil {
		return domainRouting.Contact{}, err
	}

	logrus.Infof("[CONFIG] contact %s updated", contact.Phone)
	return contact, nil
}

func (service serviceRouting) DeleteContact(_ context.Context, phone string) error {
	normalized := waid.NormalizePhone(phone)
	if normalized == "" {
		return pkgError.ValidationError("phone is required")
	}
	if err := service.store.DeleteContact(normalized); err != nil {
		return err
	}

	logrus.Infof("[CONFIG] contact %s removed", normalized)
	return nil
}

func (service serviceRouting) Groups(_ context.Context) ([]domainRouting.Group, error) {
	return service.store.Groups(), nil
}

func (service serviceRouting) AddGroup(ctx context.Context, request domainRouting.AddGroupRequest) (domainRouting.Group, error) {
	if err := validations.ValidateAddGroup(ctx, request); err != nil {
		return domainRouting.Group{}, err
	}

	group := domainRouting.Group{
		ID:   waid.NormalizeGroupID(request.ID),
		Name: strings.TrimSpace(request.Name),
	}
	if err := service.store.AddGroup(group); err != nil {
		return domainRouting.Group{}, err
	}

	logrus.Infof("[CONFIG] group %s (%s) added", group.Name, group.ID)
	return group, nil
}

func (service serviceRouting) UpdateGroup(ctx context.Context, request domainRouting.UpdateGroupRequest) (domainRouting.Group, error) {
	if err := validations.ValidateUpdateGroup(ctx, request); err != nil {
		return domainRouting.Group{}, err
	}

	group := domainRouting.Group{
		ID:   waid.NormalizeGroupID(request.ID),
		Name: strings.TrimSpace(request.Name),
	}
	if err := service.store.UpdateGroup(group.ID, group); err != nil {
		return domainRouting.Group{}, err
	}

	logrus.Infof("[CONFIG] group %s updated", group.ID)
	return group, nil
}

func (service serviceRouting) DeleteGroup(_ context.Context, id string) error {
	normalized := waid.NormalizeGroupID(id)
	if normalized == "" {
		return pkgError.ValidationError("group id is required")
	}
	if err := service.store.DeleteGroup(normalized); err != nil {
		return err
	}

	logrus.Infof("[CONFIG] group %s removed", normalized)
	return nil
}

func (service serviceRouting) WebhookSettings(_ context.Context) (domainRouting.WebhookSettings, error) {
	url, fromEnv := service.store.DefaultWebhook()
	return domainRouting.WebhookSettings{
		Default:        url,
		DefaultFromEnv: fromEnv,
		Secondary:      service.store.SecondaryWebhook(),
		TypeRoutes:     service.store.TypeRoutes(),
	}, nil
}

func (service serviceRouting) SetDefaultWebhook(ctx context.Context, request domainRouting.SetWebhookRequest) error {
	if err := validations.ValidateSetWebhook(ctx, request); err != nil {
		return err
	}
	if err := service.store.SetDefaultWebhook(request.URL); err != nil {
		return err
	}

	logrus.Infof("[CONFIG] default webhook set to %s", request.URL)
	return nil
}

func (service serviceRouting) SetSecondaryWebhook(ctx context.Context, request domainRouting.SetWebhookRequest) error {
	if err := validations.ValidateSetSecondaryWebhook(ctx, request); err != nil {
		return err
	}
	if err := service.store.SetSecondaryWebhook(request.URL); err != nil {
		return err
	}

	if request.URL == "" {
		logrus.Info("[CONFIG] secondary webhook cleared")
	} else {
		logrus.Infof("[CONFIG] secondary webhook set to %s", request.URL)
	}
	return nil
}

func (service serviceRouting) SetTypeRoute(ctx context.Context, request domainRouting.SetTypeRouteRequest) error {
	if err := validations.ValidateSetTypeRoute(ctx, request); err != nil {
		return err
	}
	if err := service.store.SetTypeRoute(request.Type, request.URL); err != nil {
		return err
	}

	logrus.Infof("[CONFIG] route for type %s set to %s", strings.ToUpper(request.Type), request.URL)
	return nil
}

func (service serviceRouting) DeleteTypeRoute(_ context.Context, entityType string) error {
	if strings.TrimSpace(entityType) == "" {
		return pkgError.ValidationError("type is required")
	}
	if err := service.store.DeleteTypeRoute(entityType); err != nil {
		return err
	}

	logrus.Infof("[CONFIG] route for type %s removed", strings.ToUpper(entityType))
	return nil
}

func (service serviceRouting) CustomTypes(_ context.Context) (map[string]domainRouting.CustomType, error) {
	return service.store.CustomTypes(), nil
}

func (service serviceRouting) SetCustomType(ctx context.Context, request domainRouting.SetCustomTypeRequest) error {
	if err := validations.ValidateSetCustomType(ctx, request); err != nil {
		return err
	}

	t := domainRouting.CustomType{
		Contacts: make([]string, 0, len(request.Contacts)),
		Groups:   make([]string, 0, len(request.Groups)),
	}
	for _, phone := range request.Contacts {
		t.Contacts = append(t.Contacts, waid.NormalizePhone(phone))
	}
	for _, id := range request.Groups {
		t.Groups = append(t.Groups, waid.NormalizeGroupID(id))
	}
	if err := service.store.SetCustomType(request.Name, t); err != nil {
		return err
	}

	logrus.Infof("[CONFIG] custom type %s set (%d contacts, %d groups)",
		strings.ToUpper(request.Name), len(t.Contacts), len(t.Groups))
	return nil
}

func (service serviceRouting) DeleteCustomType(_ context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return pkgError.ValidationError("type name is required")
	}
	if err := service.store.DeleteCustomType(name); err != nil {
		return err
	}

	logrus.Infof("[CONFIG] custom type %s removed", strings.ToUpper(name))
	return nil
}
