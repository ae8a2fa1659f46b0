package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"
)

const (
	fingerprintVersion = "fp:v1"
	unknownComponent   = "unknown"
)

// Fingerprint derives a stable anonymous voter identifier from the client
// address and user agent. Identical inputs always produce the same 64 char hex
// digest; missing components collapse to a shared sentinel.
func Fingerprint(clientAddress, userAgent string) string {
	payload := fingerprintVersion + "|" + normalizeAddress(clientAddress) + "|" + normalizeUserAgent(userAgent)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return unknownComponent
	}
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if ip, err := netip.ParseAddr(strings.Trim(addr, "[]")); err == nil {
		return ip.Unmap().String()
	}
	return strings.ToLower(addr)
}

func normalizeUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return unknownComponent
	}
	return ua
}
