package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wafilter/wafilter/config"
	"github.com/wafilter/wafilter/domains/routing"
	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/waid"
)

func newTestConfigStore(t *testing.T) (*ConfigStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.json")
	s := NewConfigStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s, path
}

func TestConfigStoreStartsEmpty(t *testing.T) {
	s, _ := newTestConfigStore(t)
	if len(s.Contacts()) != 0 || len(s.Groups()) != 0 {
		t.Fatal("fresh store should have no contacts or groups")
	}
	if url, fromEnv := s.DefaultWebhook(); url != "" || fromEnv {
		t.Fatalf("fresh store default webhook = %q fromEnv=%v", url, fromEnv)
	}
}

func TestConfigStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewConfigStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("corrupt file must not fail load: %v", err)
	}
	if len(s.Contacts()) != 0 {
		t.Fatal("corrupt file should yield an empty store")
	}
}

func TestConfigStoreContactCRUD(t *testing.T) {
	s, _ := newTestConfigStore(t)

	if err := s.AddContact(routing.Contact{Phone: "972500000001", Name: "David"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// The same number in a formatted variant is the same contact.
	err := s.AddContact(routing.Contact{Phone: "+972-50-000-0001", Name: "Dup"})
	if _, ok := err.(pkgError.DuplicateError); !ok {
		t.Fatalf("expected DuplicateError, got %v", err)
	}

	if err := s.UpdateContact("972500000001", routing.Contact{Phone: "972500000001", Name: "Dave"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if c, ok := s.FindContact("972500000001", false); !ok || c.Name != "Dave" {
		t.Fatalf("find after update = %+v ok=%v", c, ok)
	}

	if err := s.DeleteContact("972500000001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = s.DeleteContact("972500000001")
	if _, ok := err.(pkgError.NotFoundError); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestConfigStoreFindContactByLID(t *testing.T) {
	s, _ := newTestConfigStore(t)
	if err := s.AddContact(routing.Contact{Phone: "972500000001", Name: "David", LID: "98765432109876"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, ok := s.FindContact("98765432109876", true); !ok {
		t.Fatal("LID probe should match the linked identifier")
	}
	if _, ok := s.FindContact("98765432109876", false); ok {
		t.Fatal("non-LID probe must not match through the LID field")
	}
	// A LID probe still falls back to the phone for migrated contacts.
	if _, ok := s.FindContact("972500000001", true); !ok {
		t.Fatal("LID probe should fall back to the phone")
	}
}

func TestConfigStoreGroupSuffixCollision(t *testing.T) {
	s, _ := newTestConfigStore(t)
	if err := s.AddGroup(routing.Group{ID: "120363024512399999@g.us", Name: "Family"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	err := s.AddGroup(routing.Group{ID: "120363024512399999", Name: "Same"})
	if _, ok := err.(pkgError.DuplicateError); !ok {
		t.Fatalf("expected DuplicateError for suffix variant, got %v", err)
	}
	if _, ok := s.FindGroup("120363024512399999"); !ok {
		t.Fatal("bare id should find the suffixed group")
	}
}

func TestConfigStorePersistence(t *testing.T) {
	s, path := newTestConfigStore(t)
	if err := s.AddContact(routing.Contact{Phone: "972500000001", Name: "David"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddGroup(routing.Group{ID: "120363024512399999", Name: "Family"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTypeRoute("group", "https://example.test/groups"); err != nil {
		t.Fatal(err)
	}

	reloaded := NewConfigStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Contacts()) != 1 || len(reloaded.Groups()) != 1 {
		t.Fatalf("reload lost entries: %d contacts, %d groups",
			len(reloaded.Contacts()), len(reloaded.Groups()))
	}
	if url, ok := reloaded.TypeRoute("GROUP"); !ok || url != "https://example.test/groups" {
		t.Fatalf("type route lost: %q ok=%v", url, ok)
	}

	// Writes go through a temp file; none may be left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestConfigStoreEnvPinnedWebhook(t *testing.T) {
	config.WebhookURL = "https://env.example.test/hook"
	defer func() { config.WebhookURL = "" }()

	s, path := newTestConfigStore(t)
	url, fromEnv := s.DefaultWebhook()
	if url != "https://env.example.test/hook" || !fromEnv {
		t.Fatalf("env override not applied: %q fromEnv=%v", url, fromEnv)
	}

	err := s.SetDefaultWebhook("https://other.example.test")
	if _, ok := err.(pkgError.ValidationError); !ok {
		t.Fatalf("expected ValidationError for pinned webhook, got %v", err)
	}

	// The pinned URL never reaches the file.
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "env.example.test") {
		t.Fatal("env-pinned webhook written to disk")
	}

	config.WebhookURL = ""
	reloaded := NewConfigStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if url, fromEnv := reloaded.DefaultWebhook(); url != "" || fromEnv {
		t.Fatalf("after unsetting the env the default should be empty, got %q fromEnv=%v", url, fromEnv)
	}
}

func TestConfigStoreSetDefaultWebhookUnpinned(t *testing.T) {
	s, path := newTestConfigStore(t)
	if err := s.SetDefaultWebhook("https://example.test/hook"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reloaded := NewConfigStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if url, fromEnv := reloaded.DefaultWebhook(); url != "https://example.test/hook" || fromEnv {
		t.Fatalf("unpinned webhook should persist: %q fromEnv=%v", url, fromEnv)
	}
}

func TestConfigStoreTypeRouteKeysUpperCased(t *testing.T) {
	s, _ := newTestConfigStore(t)
	if err := s.SetTypeRoute("contact", "https://example.test/contacts"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.TypeRoute("contact"); !ok {
		t.Fatal("lower-case probe should resolve")
	}
	if _, ok := s.TypeRoutes()["CONTACT"]; !ok {
		t.Fatal("stored key should be upper-cased")
	}
	if err := s.DeleteTypeRoute("missing"); err == nil {
		t.Fatal("deleting an absent route should fail")
	}
}

func TestConfigStoreResolveCustomType(t *testing.T) {
	s, _ := newTestConfigStore(t)
	if err := s.SetCustomType("work", routing.CustomType{Contacts: []string{"+972-50-000-0001"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCustomType("family", routing.CustomType{
		Contacts: []string{"972500000001"},
		Groups:   []string{"120363024512399999@g.us"},
	}); err != nil {
		t.Fatal(err)
	}

	// Both types contain the number; the lexicographically first name wins.
	name, ok := s.ResolveCustomType(waid.Source{ID: "972500000001", Type: waid.SourceContact})
	if !ok || name != "FAMILY" {
		t.Fatalf("resolve = %q ok=%v, want FAMILY", name, ok)
	}

	name, ok = s.ResolveCustomType(waid.Source{ID: "120363024512399999", Type: waid.SourceGroup})
	if !ok || name != "FAMILY" {
		t.Fatalf("group resolve = %q ok=%v", name, ok)
	}

	if _, ok := s.ResolveCustomType(waid.Source{ID: "15550001111", Type: waid.SourceContact}); ok {
		t.Fatal("unlisted identity must not resolve")
	}
}
