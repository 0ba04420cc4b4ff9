package proxy

import "strings"

// BuildURL composes the upstream URL for a target.
//
// path and rawQuery are used exactly as received; nothing is re-encoded.
// hasQuery distinguishes "/x?" from "/x": when true a "?" is appended even if
// rawQuery is empty.
func BuildURL(protocol, host, port, path, rawQuery string, hasQuery bool) string {
	var b strings.Builder
	b.WriteString(protocol)
	b.WriteString("://")
	b.WriteString(strings.TrimRight(host, "/"))
	if port != "" {
		b.WriteByte(':')
		b.WriteString(port)
	}

	base := strings.TrimRight(b.String(), "/")
	b.Reset()
	b.WriteString(base)
	b.WriteByte('/')
	b.WriteString(path)
	if hasQuery {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	return b.String()
}
