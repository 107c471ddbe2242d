package postback

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// IPAllowlist matches client addresses against single IPs and CIDR ranges.
// An empty allowlist allows everything.
type IPAllowlist struct {
	prefixes []netip.Prefix
}

func NewIPAllowlist(entries []string) (*IPAllowlist, error) {
	a := &IPAllowlist{}
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid allowlist entry %q: %w", raw, err)
			}
			a.prefixes = append(a.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist entry %q: %w", raw, err)
		}
		addr = addr.Unmap()
		a.prefixes = append(a.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return a, nil
}

func (a *IPAllowlist) Empty() bool {
	return a == nil || len(a.prefixes) == 0
}

// Allows reports whether ip (optionally with a port) is on the list.
func (a *IPAllowlist) Allows(ip string) bool {
	if a.Empty() {
		return true
	}
	addr, err := netip.ParseAddr(hostOnly(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
