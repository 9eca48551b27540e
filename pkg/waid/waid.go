// Package waid normalizes WhatsApp addressing. Every comparison of phones or
// group IDs anywhere in the service goes through these helpers so the rest of
// the code never looks at raw JID suffixes.
package waid

import "strings"

const (
	SuffixUser      = "@s.whatsapp.net"
	SuffixGroup     = "@g.us"
	SuffixLID       = "@lid"
	SuffixBroadcast = "@broadcast"
	StatusBroadcast = "status@broadcast"
)

type SourceType string

const (
	SourceContact SourceType = "contact"
	SourceGroup   SourceType = "group"
	SourceStatus  SourceType = "status"
	SourceUnknown SourceType = "unknown"
)

// Source is the classified form of a raw remote address.
type Source struct {
	ID    string
	Type  SourceType
	IsLID bool
}

// ParseSource classifies a raw remote address. Check order matters: status
// broadcast first, then group, then LID, then plain user.
func ParseSource(remote string) Source {
	switch {
	case remote == "":
		return Source{Type: SourceUnknown}
	case strings.Contains(remote, StatusBroadcast):
		return Source{ID: remote, Type: SourceStatus}
	case strings.Contains(remote, SuffixGroup):
		return Source{ID: strings.TrimSuffix(remote, SuffixGroup), Type: SourceGroup}
	case strings.Contains(remote, SuffixLID):
		return Source{ID: strings.TrimSuffix(remote, SuffixLID), Type: SourceContact, IsLID: true}
	default:
		return Source{ID: strings.TrimSuffix(remote, SuffixUser), Type: SourceContact}
	}
}

// NormalizePhone strips everything that is not a digit. Idempotent, so it is
// safe to apply to values that were already normalized.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeGroupID strips a trailing group suffix when present. Idempotent.
func NormalizeGroupID(s string) string {
	return strings.TrimSuffix(s, SuffixGroup)
}

func IsGroupJID(s string) bool {
	return strings.Contains(s, SuffixGroup)
}

func IsStatusBroadcast(s string) bool {
	return strings.Contains(s, StatusBroadcast)
}

func IsLID(s string) bool {
	return strings.Contains(s, SuffixLID)
}

// SamePhone reports whether two raw phone-ish values refer to the same
// number after normalization. Empty values never match.
func SamePhone(a, b string) bool {
	na, nb := NormalizePhone(a), NormalizePhone(b)
	return na != "" && na == nb
}
