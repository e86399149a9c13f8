package normalize

import (
	"net/url"
	"strings"
)

// formdataSentinels mark the end of an embedded formdata segment in LMS
// access-log lines.
var formdataSentinels = []string{" index=", " methodname=", " HTTP/"}

// UnquotePlus percent-decodes s and turns '+' into a space. Malformed escapes
// are kept as-is instead of failing.
func UnquotePlus(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	s = strings.ReplaceAll(s, "+", " ")
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

type pair struct {
	key, value string
}

// parseQuery splits a key=value&key=value string. Segments without '=' and
// segments with an empty value are skipped; keys and values are decoded.
func parseQuery(s string) []pair {
	var pairs []pair
	for _, seg := range strings.Split(s, "&") {
		if seg == "" {
			continue
		}
		k, v, ok := strings.Cut(seg, "=")
		if !ok || v == "" {
			continue
		}
		k = UnquotePlus(k)
		if k == "" {
			continue
		}
		pairs = append(pairs, pair{key: k, value: UnquotePlus(v)})
	}
	return pairs
}

// looksLikeQuery reports whether s carries at least two encoded pairs.
func looksLikeQuery(s string) bool {
	return strings.Contains(s, "=") && strings.Contains(s, "&")
}

// cutAtSentinel truncates an embedded formdata value at the first marker
// that starts the next segment of the log line.
func cutAtSentinel(s string) string {
	end := len(s)
	for _, sentinel := range formdataSentinels {
		if i := strings.Index(s, sentinel); i >= 0 && i < end {
			end = i
		}
	}
	return s[:end]
}
