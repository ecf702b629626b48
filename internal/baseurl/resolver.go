// Package baseurl computes the externally visible base URL of the server.
//
// With a fixed base URL configured the resolver returns it unchanged.
// Otherwise scheme and host come from the incoming request; forwarding
// headers (RFC 7239 Forwarded, or the discrete X-Forwarded-* pair) are
// honored only when the immediate peer is a configured trusted proxy, so
// untrusted clients cannot spoof the host.
package baseurl

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Resolver derives base URLs for link building.
type Resolver struct {
	fixed   string
	proxies []netip.Prefix
}

// New builds a resolver. trustedProxies entries are single IPs or CIDRs.
func New(fixed string, trustedProxies []string) (*Resolver, error) {
	r := &Resolver{fixed: strings.TrimRight(fixed, "/")}

	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			r.proxies = append(r.proxies, prefix)
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		r.proxies = append(r.proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// Resolve returns the base URL (scheme://host, no trailing slash) for the
// given request.
func (r *Resolver) Resolve(req *http.Request) string {
	if r.fixed != "" {
		return r.fixed
	}

	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	host := req.Host

	if r.trusted(req) {
		if fwdScheme, fwdHost := forwardedValues(req); fwdHost != "" {
			host = fwdHost
			if fwdScheme != "" {
				scheme = fwdScheme
			}
		} else if fwdScheme != "" {
			scheme = fwdScheme
		}
	}

	return scheme + "://" + host
}

// trusted reports whether the immediate peer is on the allow-list.
func (r *Resolver) trusted(req *http.Request) bool {
	if len(r.proxies) == 0 {
		return false
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	peer = peer.Unmap()

	for _, prefix := range r.proxies {
		if prefix.Contains(peer) {
			return true
		}
	}
	return false
}

// forwardedValues extracts proto and host from the structured Forwarded
// header, falling back to the discrete X-Forwarded-* headers.
func forwardedValues(req *http.Request) (scheme, host string) {
	if fwd := req.Header.Get("Forwarded"); fwd != "" {
		// Only the first (closest proxy) element matters.
		first, _, _ := strings.Cut(fwd, ",")
		for _, pair := range strings.Split(first, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), `"`)
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "proto":
				scheme = strings.ToLower(value)
			case "host":
				host = value
			}
		}
		return scheme, host
	}

	scheme = strings.ToLower(req.Header.Get("X-Forwarded-Proto"))
	host = req.Header.Get("X-Forwarded-Host")
	return scheme, host
}
