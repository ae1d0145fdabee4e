package infast

import (
	"net/url"
	"sort"
	"strings"
)

// encodeQuery renders params sorted by key with RFC 3986 escaping: spaces
// become %20 and a literal '+' becomes %2B.
func encodeQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(rawURLEncode(k))
		b.WriteByte('=')
		b.WriteString(rawURLEncode(params[k]))
	}
	return b.String()
}

func rawURLEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
