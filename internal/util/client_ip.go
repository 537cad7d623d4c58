package util

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is the set of peers whose forwarding headers are believed.
// A nil *TrustedProxies trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

var proxyKeywords = map[string][]string{
	"loopback": {"127.0.0.0/8", "::1/128"},
	"private":  {"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"},
}

// NewTrustedProxies parses CIDRs, single addresses, and the keywords
// "loopback" and "private". An empty list yields nil.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	var prefixes []netip.Prefix
	for _, raw := range entries {
		entry := strings.ToLower(strings.TrimSpace(raw))
		if entry == "" {
			continue
		}
		if expanded, ok := proxyKeywords[entry]; ok {
			for _, cidr := range expanded {
				prefixes = append(prefixes, netip.MustParsePrefix(cidr))
			}
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	if len(prefixes) == 0 {
		return nil, nil
	}
	return &TrustedProxies{prefixes: prefixes}, nil
}

// Contains reports whether addr belongs to a trusted proxy.
func (t *TrustedProxies) Contains(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// FromTrustedPeer reports whether the direct peer of r is a trusted proxy.
func (t *TrustedProxies) FromTrustedPeer(r *http.Request) bool {
	return t.Contains(peerAddr(r.RemoteAddr))
}

// ClientIP resolves the caller address. Forwarding headers are only read
// when the direct peer is trusted; the hop chain is then walked from the
// right and the first untrusted address wins. Forwarded (RFC 7239) takes
// precedence over X-Forwarded-For, which takes precedence over X-Real-IP.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	peer := peerAddr(r.RemoteAddr)
	if !peer.IsValid() {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Contains(peer) {
		return peer.String()
	}

	hops := forwardedHops(r.Header.Get("Forwarded"))
	if len(hops) == 0 {
		hops = forwardedForHops(r.Header.Get("X-Forwarded-For"))
	}
	if len(hops) > 0 {
		for i := len(hops) - 1; i >= 0; i-- {
			if !trusted.Contains(hops[i]) {
				return hops[i].String()
			}
		}
		return hops[0].String()
	}
	if realIP := parseAddr(r.Header.Get("X-Real-IP")); realIP.IsValid() {
		return realIP.String()
	}
	return peer.String()
}

func forwardedForHops(raw string) []netip.Addr {
	var out []netip.Addr
	for _, part := range strings.Split(raw, ",") {
		if addr := parseAddr(part); addr.IsValid() {
			out = append(out, addr)
		}
	}
	return out
}

// forwardedHops extracts the for= addresses of a Forwarded header. Obfuscated
// identifiers and "unknown" are skipped.
func forwardedHops(raw string) []netip.Addr {
	var out []netip.Addr
	for _, element := range strings.Split(raw, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(key, "for") {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), `"`)
			if strings.HasPrefix(value, "[") {
				// [v6]:port or [v6]
				if end := strings.Index(value, "]"); end > 0 {
					value = value[1:end]
				}
			} else if host, _, found := strings.Cut(value, ":"); found && strings.Count(value, ":") == 1 {
				value = host
			}
			if addr := parseAddr(value); addr.IsValid() {
				out = append(out, addr)
			}
		}
	}
	return out
}

func peerAddr(remote string) netip.Addr {
	remote = strings.TrimSpace(remote)
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap()
	}
	return parseAddr(remote)
}

func parseAddr(raw string) netip.Addr {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
