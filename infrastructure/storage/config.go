package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/config"
	"github.com/wafilter/wafilter/domains/routing"
	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/waid"
)

// ConfigStore owns contacts.json: the contact and group allow-lists, the
// webhook destinations and the operator-defined custom types.
type ConfigStore struct {
	mu   sync.RWMutex
	path string

	contacts   []routing.Contact
	groups     []routing.Group
	defaultURL string

	// defaultFromEnv marks the default destination as environment-pinned:
	// it cannot be changed over the API and is never written back to disk.
	defaultFromEnv bool
	secondaryURL   string
	typeRoutes     map[string]string
	customTypes    map[string]routing.CustomType
}

type configFile struct {
	Contacts     []routing.Contact             `json:"contacts"`
	Groups       []routing.Group               `json:"groups"`
	WebhookURL   string                        `json:"webhookUrl,omitempty"`
	SecondaryURL string                        `json:"secondaryWebhookUrl,omitempty"`
	TypeRoutes   map[string]string             `json:"typeRoutes,omitempty"`
	CustomTypes  map[string]routing.CustomType `json:"customTypes,omitempty"`
}

func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{
		path:        path,
		typeRoutes:  make(map[string]string),
		customTypes: make(map[string]routing.CustomType),
	}
}

// Load reads the file and applies the environment override for the default
// destination. A missing file starts empty; a corrupt one is logged and
// likewise starts empty so the service never refuses to boot over it.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc configFile
	if err := readJSON(s.path, &doc); err != nil {
		if !os.IsNotExist(err) {
			logrus.Errorf("[STORE] contacts file %s unreadable, starting empty: %v", s.path, err)
		}
	} else {
		s.contacts = doc.Contacts
		s.groups = doc.Groups
		s.defaultURL = doc.WebhookURL
		s.secondaryURL = doc.SecondaryURL
		if doc.TypeRoutes != nil {
			s.typeRoutes = doc.TypeRoutes
		}
		if doc.CustomTypes != nil {
			s.customTypes = doc.CustomTypes
		}
	}

	if config.WebhookURL != "" {
		s.defaultURL = config.WebhookURL
		s.defaultFromEnv = true
	}
	if s.secondaryURL == "" && config.WebhookSecondaryURL != "" {
		s.secondaryURL = config.WebhookSecondaryURL
	}

	logrus.Infof("[STORE] routing config loaded: %d contacts, %d groups, %d type routes",
		len(s.contacts), len(s.groups), len(s.typeRoutes))
	return nil
}

// Save writes the current state atomically. The env-pinned default URL is
// left out of the file so the environment keeps winning on the next boot.
func (s *ConfigStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *ConfigStore) saveLocked() error {
	doc := configFile{
		Contacts:     s.contacts,
		Groups:       s.groups,
		SecondaryURL: s.secondaryURL,
		TypeRoutes:   s.typeRoutes,
		CustomTypes:  s.customTypes,
	}
	if !s.defaultFromEnv {
		doc.WebhookURL = s.defaultURL
	}
	return writeJSONAtomic(s.path, doc)
}

func (s *ConfigStore) Contacts() []routing.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]routing.Contact, len(s.contacts))
	copy(out, s.contacts)
	return out
}

func (s *ConfigStore) AddContact(c routing.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.contacts {
		if waid.SamePhone(existing.Phone, c.Phone) {
			return pkgError.DuplicateError(fmt.Sprintf("contact %s already exists", c.Phone))
		}
	}
	s.contacts = append(s.contacts, c)
	return s.saveLocked()
}

func (s *ConfigStore) UpdateContact(phone string, c routing.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.contacts {
		if waid.SamePhone(existing.Phone, phone) {
			s.contacts[i] = c
			return s.saveLocked()
		}
	}
	return pkgError.NotFoundError(fmt.Sprintf("contact %s not found", phone))
}

func (s *ConfigStore) DeleteContact(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.contacts {
		if waid.SamePhone(existing.Phone, phone) {
			s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
			return s.saveLocked()
		}
	}
	return pkgError.NotFoundError(fmt.Sprintf("contact %s not found", phone))
}

// FindContact matches by normalized phone, or by the contact's linked
// identifier when the probe is a LID identity.
func (s *ConfigStore) FindContact(id string, isLID bool) (routing.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.contacts {
		if isLID && c.LID != "" && waid.SamePhone(c.LID, id) {
			return c, true
		}
		if waid.SamePhone(c.Phone, id) {
			return c, true
		}
	}
	return routing.Contact{}, false
}

func (s *ConfigStore) Groups() []routing.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]routing.Group, len(s.groups))
	copy(out, s.groups)
	return out
}

func (s *ConfigStore) AddGroup(g routing.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if waid.NormalizeGroupID(existing.ID) == waid.NormalizeGroupID(g.ID) {
			return pkgError.DuplicateError(fmt.Sprintf("group %s already exists", g.ID))
		}
	}
	s.groups = append(s.groups, g)
	return s.saveLocked()
}

func (s *ConfigStore) UpdateGroup(id string, g routing.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.groups {
		if waid.NormalizeGroupID(existing.ID) == waid.NormalizeGroupID(id) {
			s.groups[i] = g
			return s.saveLocked()
		}
	}
	return pkgError.NotFoundError(fmt.Sprintf("group %s not found", id))
}

func (s *ConfigStore) DeleteGroup(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.groups {
		if waid.NormalizeGroupID(existing.ID) == waid.NormalizeGroupID(id) {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return s.saveLocked()
		}
	}
	return pkgError.NotFoundError(fmt.Sprintf("group %s not found", id))
}

func (s *ConfigStore) FindGroup(id string) (routing.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := waid.NormalizeGroupID(id)
	for _, g := range s.groups {
		if waid.NormalizeGroupID(g.ID) == want {
			return g, true
		}
	}
	return routing.Group{}, false
}

func (s *ConfigStore) DefaultWebhook() (url string, fromEnv bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultURL, s.defaultFromEnv
}

func (s *ConfigStore) SetDefaultWebhook(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.defaultFromEnv {
		return pkgError.ValidationError("default webhook is set via environment and cannot be changed here")
	}
	s.defaultURL = url
	return s.saveLocked()
}

func (s *ConfigStore) SecondaryWebhook() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secondaryURL
}

func (s *ConfigStore) SetSecondaryWebhook(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secondaryURL = url
	return s.saveLocked()
}

func (s *ConfigStore) TypeRoutes() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.typeRoutes))
	for k, v := range s.typeRoutes {
		out[k] = v
	}
	return out
}

func (s *ConfigStore) TypeRoute(entityType string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.typeRoutes[strings.ToUpper(entityType)]
	return url, ok
}

func (s *ConfigStore) SetTypeRoute(entityType, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typeRoutes[strings.ToUpper(entityType)] = url
	return s.saveLocked()
}

func (s *ConfigStore) DeleteTypeRoute(entityType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(entityType)
	if _, ok := s.typeRoutes[key]; !ok {
		return pkgError.NotFoundError(fmt.Sprintf("no route for type %s", entityType))
	}
	delete(s.typeRoutes, key)
	return s.saveLocked()
}

func (s *ConfigStore) CustomTypes() map[string]routing.CustomType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]routing.CustomType, len(s.customTypes))
	for k, v := range s.customTypes {
		out[k] = v
	}
	return out
}

func (s *ConfigStore) SetCustomType(name string, t routing.CustomType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customTypes[strings.ToUpper(name)] = t
	return s.saveLocked()
}

func (s *ConfigStore) DeleteCustomType(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(name)
	if _, ok := s.customTypes[key]; !ok {
		return pkgError.NotFoundError(fmt.Sprintf("custom type %s not found", name))
	}
	delete(s.customTypes, key)
	return s.saveLocked()
}

// ResolveCustomType returns the first custom type whose member list contains
// the identity. Names are checked in lexicographic order so resolution stays
// deterministic when an identity appears in several types.
func (s *ConfigStore) ResolveCustomType(src waid.Source) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.customTypes))
	for name := range s.customTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := s.customTypes[name]
		switch src.Type {
		case waid.SourceGroup:
			for _, g := range t.Groups {
				if waid.NormalizeGroupID(g) == waid.NormalizeGroupID(src.ID) {
					return name, true
				}
			}
		case waid.SourceContact:
			for _, c := range t.Contacts {
				if waid.SamePhone(c, src.ID) {
					return name, true
				}
			}
		}
	}
	return "", false
}
