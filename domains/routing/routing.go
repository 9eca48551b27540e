package routing

import "context"

// Entity types assigned during authorization. Custom types defined by the
// operator come on top of these.
const (
	EntityContact = "CONTACT"
	EntityGroup   = "GROUP"
	EntitySelf    = "SELF"
)

type Contact struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	LID   string `json:"lid,omitempty"`
}

type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CustomType groups contacts and groups under an operator-defined entity
// type so they can be routed to a dedicated destination.
type CustomType struct {
	Contacts []string `json:"contacts,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

type AddContactRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	LID   string `json:"lid,omitempty"`
}

type UpdateContactRequest struct {
	Phone string `json:"phone" uri:"phone"`
	Name  string `json:"name"`
	LID   string `json:"lid,omitempty"`
}

type AddGroupRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UpdateGroupRequest struct {
	ID   string `json:"id" uri:"id"`
	Name string `json:"name"`
}

type SetWebhookRequest struct {
	URL string `json:"url"`
}

type SetTypeRouteRequest struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type SetCustomTypeRequest struct {
	Name     string   `json:"name" uri:"name"`
	Contacts []string `json:"contacts,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// WebhookSettings is the admin view of the routing configuration.
type WebhookSettings struct {
	Default        string            `json:"default,omitempty"`
	DefaultFromEnv bool              `json:"default_from_env"`
	Secondary      string            `json:"secondary,omitempty"`
	TypeRoutes     map[string]string `json:"type_routes,omitempty"`
}

type IRoutingUsecase interface {
	Contacts(ctx context.Context) ([]Contact, error)
	AddContact(ctx context.Context, request AddContactRequest) (Contact, error)
	UpdateContact(ctx context.Context, request UpdateContactRequest) (Contact, error)
	DeleteContact(ctx context.Context, phone string) error

	Groups(ctx context.Context) ([]Group, error)
	AddGroup(ctx context.Context, request AddGroupRequest) (Group, error)
	UpdateGroup(ctx context.Context, request UpdateGroupRequest) (Group, error)
	DeleteGroup(ctx context.Context, id string) error

	WebhookSettings(ctx context.Context) (WebhookSettings, error)
	SetDefaultWebhook(ctx context.Context, request SetWebhookRequest) error
	SetSecondaryWebhook(ctx context.Context, request SetWebhookRequest) error
	SetTypeRoute(ctx context.Context, request SetTypeRouteRequest) error
	DeleteTypeRoute(ctx context.Context, entityType string) error

	CustomTypes(ctx context.Context) (map[string]CustomType, error)
	SetCustomType(ctx context.Context, request SetCustomTypeRequest) error
	DeleteCustomType(ctx context.Context, name string) error
}
