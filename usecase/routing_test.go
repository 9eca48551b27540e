package usecase

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRouting "github.com/wafilter/wafilter/domains/routing"
	"github.com/wafilter/wafilter/infrastructure/storage"
)

func routingFixture(t *testing.T) domainRouting.IRoutingUsecase {
	t.Helper()
	store := storage.NewConfigStore(filepath.Join(t.TempDir(), "contacts.json"))
	return NewRoutingService(store)
}

func TestAddContactNormalizesPhone(t *testing.T) {
	service := routingFixture(t)
	ctx := context.Background()

	contact, err := service.AddContact(ctx, domainRouting.AddContactRequest{
		Phone: "+972 50-123-4567",
		Name:  "  Dana  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "972501234567", contact.Phone)
	assert.Equal(t, "Dana", contact.Name)

	contacts, err := service.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "972501234567", contacts[0].Phone)
}

func TestAddContactRejectsDuplicates(t *testing.T) {
	service := routingFixture(t)
	ctx := context.Background()

	_, err := service.AddContact(ctx, domainRouting.AddContactRequest{Phone: "972501234567", Name: "Dana"})
	require.NoError(t, err)

	// same phone in a different format is still the same contact
	_, err = service.AddContact(ctx, domainRouting.AddContactRequest{Phone: "+972-50-1234567", Name: "Dana again"})
	assert.Error(t, err)
}

func TestUpdateAndDeleteContact(t *testing.T) {
	service := routingFixture(t)
	ctx := context.Background()

	_, err := service.AddContact(ctx, domainRouting.AddContactRequest{Phone: "972501234567", Name: "Dana"})
	require.NoError(t, err)

	updated, err := service.UpdateContact(ctx, domainRouting.UpdateContactRequest{
		Phone: "972501234567",
		Name:  "Dana L",
		LID:   "98765432101234",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dana L", updated.Name)
	assert.Equal(t, "98765432101234", updated.LID)

	require.NoError(t, service.DeleteContact(ctx, "972501234567"))
	assert.Error(t, service.DeleteContact(ctx, "972501234567"))

	contacts, err := service.Contacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestGroupLifecycle(t *testing.T) {
	service := routingFixture(t)
	ctx := context.Background()

	group, err := service.AddGroup(ctx, domainRouting.AddGroupRequest{
		ID:   "120363041234567890@g.us",
		Name: "Family",
	})
	require.NoError(t, err)
	assert.Equal(t, "120363041234567890", group.ID)

	_, err = service.UpdateGroup(ctx, domainRouting.UpdateGroupRequest{ID: "120363041234567890", Name: "Family 2024"})
	require.NoError(t, err)

	groups, err := service.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Family 2024", groups[0].Name)

	require.NoError(t, service.DeleteGroup(ctx, "120363041234567890@g.us"))
	assert.Error(t, service.DeleteGroup(ctx, "120363041234567890"))
}

func TestWebhookSettingsRoundTrip(t *testing.T) {
	service := routingFixture(t)
	ctx := context.Background()

	require.NoError(t, service.SetDefaultWebhook(ctx, domainRouting.SetWebhookRequest{URL: "https://hooks.example.com/wa"}))
	require.NoError(t, service.SetSecondaryWebhook(ctx, domainRouting.SetWebhookRequest{URL: "https://mirror.example.com/wa"}))
	require.NoError(t, service.SetTypeRoute(ctx, domainRouting.SetTypeRouteRequest{Type: "group", URL: "https://hooks.example.com/groups"}))

	settings, err := service.WebhookSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/wa", settings.Default)
	assert.False(t, settings.DefaultFromEnv)
	assert.Equal(t, "https://mirror.example.com/wa", settings.Secondary)
	assert.Equal(t, "https://hooks.example.com/groups", settings.TypeRoutes["GROUP"])

	require.NoError(t, service.DeleteTypeRoute(ctx, "GROUP"))
	assert.Error(t, service.DeleteTypeRoute(ctx, "GROUP"))

	// clearing the mirror is allowed
	require.NoError(t, service.SetSecondaryWebhook(ctx, domainRouting.SetWebhookRequest{URL: ""}))
	settings, err = service.WebhookSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings.Secondary)
}

func TestCustomTypeNormalizesMembers(t *testing.T) {
	service := routingFixture(t)
	ctx := context.Background()

	err := service.SetCustomType(ctx, domainRouting.SetCustomTypeRequest{
		Name:     "work",
		Contacts: []string{"+972 50-123-4567"},
		Groups:   []string{"120363041234567890@g.us"},
	})
	require.NoError(t, err)

	types, err := service.CustomTypes(ctx)
	require.NoError(t, err)
	require.Contains(t, types, "WORK")
	assert.Equal(t, []string{"972501234567"}, types["WORK"].Contacts)
	assert.Equal(t, []string{"120363041234567890"}, types["WORK"].Groups)

	require.NoError(t, service.DeleteCustomType(ctx, "work"))
	assert.Error(t, service.DeleteCustomType(ctx, "WORK"))
}
