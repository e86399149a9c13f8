package normalize

import (
	"html"
	"strings"

	"github.com/af-corp/aegis-ids/internal/types"
)

// BuildCanonical joins method, url and body into the text used both as model
// input and as cache key material. Body may be Fields, a nested mapping, or a
// plain string used verbatim. It returns "" when method and url are both
// empty; such requests must be rejected before classification.
func BuildCanonical(method, url string, body any) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	url = strings.TrimSpace(url)
	if method == "" && url == "" {
		return ""
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{method, url, strings.TrimSpace(bodyText(body))} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return html.UnescapeString(strings.Join(parts, " "))
}

func bodyText(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case string:
		return b
	case Fields:
		return b.String()
	case map[string]string:
		return Fields(b).String()
	case map[string]any:
		return Flatten(b).String()
	default:
		return scalar(b)
	}
}

// Canonicalize normalizes the request body and builds its canonical text.
func (n *Normalizer) Canonicalize(req types.RequestDescriptor) (string, Fields) {
	fields := n.Normalize(req.Body)
	return BuildCanonical(req.Method, req.URL, fields), fields
}
