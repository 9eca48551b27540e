// Package ipfilter matches client IPs against a configured allow-list of
// plain addresses and CIDR ranges.
package ipfilter

import (
	"fmt"
	"net"
	"strings"
)

type Allowlist struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

// Parse builds an Allowlist from comma-separated entries. Each entry is a
// plain IP ("10.0.0.5") or a CIDR range ("10.0.0.0/8"). An empty input
// yields a nil list, which allows everything.
func Parse(entries []string) (*Allowlist, error) {
	cleaned := make([]string, 0, len(entries))
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	list := &Allowlist{ips: make(map[string]struct{})}
	for _, entry := range cleaned {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			list.nets = append(list.nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP %q", entry)
		}
		list.ips[ip.String()] = struct{}{}
	}
	return list, nil
}

// Allowed reports whether addr passes the list. A nil list allows everything;
// an unparseable address never passes a non-nil list.
func (l *Allowlist) Allowed(addr string) bool {
	if l == nil {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return false
	}
	if _, ok := l.ips[ip.String()]; ok {
		return true
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
