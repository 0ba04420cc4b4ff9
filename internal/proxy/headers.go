package proxy

import (
	"net/http"
	"strings"
)

const (
	// HeaderTargetID selects the target for a proxied request.
	HeaderTargetID = "X-Target-Id"
	// HeaderTargetURL is a control-plane hint that is never forwarded.
	HeaderTargetURL = "X-Target-Url"
)

// reservedHeaders are stripped before forwarding. Host is recomputed for
// the upstream, Authorization is injected per target, and the X-Target-*
// headers only steer the proxy.
var reservedHeaders = []string{
	"Host",
	HeaderTargetID,
	HeaderTargetURL,
	"Authorization",
}

func isReserved(name string) bool {
	for _, r := range reservedHeaders {
		if strings.EqualFold(name, r) {
			return true
		}
	}
	return false
}

// FilterHeaders returns a copy of h without the reserved headers, matched
// case-insensitively. Repeated values keep their order.
func FilterHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		if isReserved(name) {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}
