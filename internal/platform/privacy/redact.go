// Package privacy redacts personal data before it reaches the logs.
package privacy

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// MaskEmail keeps the first character of the local part and the domain:
// "purchaser@procura.test" becomes "p***@procura.test".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" || domain == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// AnonymizeIP truncates IPv4 to its /24 and IPv6 to its /48 network.
// Empty input yields "unknown", unparseable input "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, _ := addr.Prefix(bits)
	return prefix.Addr().String()
}

// ClientIP returns the anonymized address of the request's peer.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return AnonymizeIP(host)
}
