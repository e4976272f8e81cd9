package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIP returns the address the API attributes r to, for rate limiting
// and operator lockouts.
func (a *API) clientIP(r *http.Request) string {
	return clientIP(r, a.trustedProxies)
}

// clientIP returns the peer address of r. Forwarding headers are consulted
// only when the peer itself is one of the trusted proxies; the first valid
// address from X-Forwarded-For, then Forwarded "for=", then X-Real-IP wins.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok {
		return ""
	}
	if !isTrusted(peer, trusted) {
		return peer.String()
	}
	for _, candidate := range forwardedCandidates(r.Header) {
		if addr, ok := parseAddr(candidate); ok {
			return addr.String()
		}
	}
	return peer.String()
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedCandidates lists client addresses claimed by proxy headers in
// order of preference.
func forwardedCandidates(h http.Header) []string {
	var out []string
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		out = append(out, strings.Split(xff, ",")...)
	}
	for _, elem := range strings.Split(h.Get("Forwarded"), ",") {
		for _, pair := range strings.Split(elem, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				out = append(out, value)
			}
		}
	}
	if xrip := h.Get("X-Real-IP"); xrip != "" {
		out = append(out, xrip)
	}
	return out
}

// parseAddr accepts a bare address, host:port, a bracketed IPv6 literal with
// or without a port, and quoted forms from the Forwarded header. Zones are
// dropped.
func parseAddr(raw string) (netip.Addr, bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}
