// Package mask redacts credential-like values before request text reaches
// the audit log. It never changes what the classifier sees.
package mask

import (
	"regexp"
	"strings"

	"github.com/af-corp/aegis-ids/internal/normalize"
)

// Redacted replaces every sensitive value.
const Redacted = "*****"

// DefaultSensitiveKeys are matched as case-insensitive substrings of field names.
var DefaultSensitiveKeys = []string{"password", "token", "auth", "key", "sesskey", "apikey", "access_token"}

// Masker redacts sensitive fields, inline key=value pairs and structured
// secrets. It is immutable and safe for concurrent use.
type Masker struct {
	keys     []string
	inline   *regexp.Regexp
	jsonPair *regexp.Regexp
	patterns []Pattern
}

// New creates a masker for the default sensitive keys plus extra.
func New(extra ...string) *Masker {
	keys := make([]string, 0, len(DefaultSensitiveKeys)+len(extra))
	seen := make(map[string]bool)
	for _, k := range append(append([]string{}, DefaultSensitiveKeys...), extra...) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}

	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}

	alt := strings.Join(quoted, "|")
	return &Masker{
		keys:   keys,
		inline: regexp.MustCompile(`(?i)&(` + alt + `)=[^&]*`),
		// A quoted member name containing a sensitive key, followed by a
		// string or bare scalar value.
		jsonPair: regexp.MustCompile(`(?i)("[^"]*(?:` + alt + `)[^"]*"\s*:\s*)(?:"(?:[^"\\]|\\.)*"|[^,}\]\s]+)`),
		patterns: DefaultPatterns(),
	}
}

// Sensitive reports whether a field name contains any sensitive key.
func (m *Masker) Sensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range m.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Fields renders f as space-joined key=value pairs in key order. Sensitive
// values are replaced with Redacted, the rest are URL-decoded for reading.
func (m *Masker) Fields(f normalize.Fields) string {
	return strings.Join(m.pairs(f, nil), " ")
}

// pairs renders each field as its own segment; clean, when set, is applied
// to every segment separately.
func (m *Masker) pairs(f normalize.Fields, clean func(string) string) []string {
	out := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		if k == normalize.RawKey {
			continue
		}
		v := normalize.UnquotePlus(f[k])
		if m.Sensitive(k) {
			v = Redacted
		}
		out = append(out, k+"="+v)
	}
	if raw, ok := f.Remainder(); ok && raw != "" {
		out = append(out, normalize.UnquotePlus(raw))
	}
	if clean != nil {
		for i := range out {
			out[i] = clean(out[i])
		}
	}
	return out
}

// Inline redacts key=value sequences that follow an '&' and whose key is
// one of the sensitive keys. The value runs to the next '&' or the end.
func (m *Masker) Inline(s string) string {
	return m.inline.ReplaceAllString(s, "&${1}="+Redacted)
}

// JSON redacts sensitive members inside JSON text, such as arrays that were
// rendered whole into a single field.
func (m *Masker) JSON(s string) string {
	return m.jsonPair.ReplaceAllString(s, `${1}"`+Redacted+`"`)
}

// Secrets replaces structured secrets such as JWTs or cloud keys.
func (m *Masker) Secrets(s string) string {
	for _, p := range m.patterns {
		s = p.Regex.ReplaceAllString(s, Redacted)
	}
	return s
}

// URLQuery masks sensitive query parameters of a URL, keeping everything
// else byte for byte.
func (m *Masker) URLQuery(rawURL string) string {
	base, query, ok := strings.Cut(rawURL, "?")
	if !ok {
		return rawURL
	}
	query, fragment, hasFragment := strings.Cut(query, "#")

	params := strings.Split(query, "&")
	for i, p := range params {
		name, _, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		if m.Sensitive(normalize.UnquotePlus(name)) {
			params[i] = name + "=" + Redacted
		}
	}

	out := base + "?" + strings.Join(params, "&")
	if hasFragment {
		out += "#" + fragment
	}
	return out
}

// Line builds the masked audit text for a request. The inline pass runs on
// the URL and on each field separately.
func (m *Masker) Line(method, url string, f normalize.Fields) string {
	parts := make([]string, 0, len(f)+2)
	if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
		parts = append(parts, method)
	}
	if url = strings.TrimSpace(url); url != "" {
		parts = append(parts, m.Inline(m.URLQuery(url)))
	}
	for _, p := range m.pairs(f, m.Inline) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return m.Secrets(m.JSON(strings.Join(parts, " ")))
}

var defaultMasker = New()

// Fields masks f with the default keys plus extra.
func Fields(f normalize.Fields, extra ...string) string {
	if len(extra) == 0 {
		return defaultMasker.Fields(f)
	}
	return New(extra...).Fields(f)
}

// Inline applies the inline pass with the default keys plus extra.
func Inline(s string, extra ...string) string {
	if len(extra) == 0 {
		return defaultMasker.Inline(s)
	}
	return New(extra...).Inline(s)
}
