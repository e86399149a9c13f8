package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Separator joins the key path of a nested field.
const Separator = "||"

// RawKey holds a body remainder that could not be decoded into fields.
const RawKey = "raw"

// Fields is a flat set of body fields. Keys are Separator-joined paths and
// values are always scalar strings.
type Fields map[string]string

// Keys returns the field names in lexicographic order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Remainder returns the undecoded raw body, if any survived normalization.
func (f Fields) Remainder() (string, bool) {
	v, ok := f[RawKey]
	return v, ok
}

// String renders the fields as space-joined key=value pairs in key order.
// A raw remainder is appended verbatim without its key.
func (f Fields) String() string {
	var b strings.Builder
	for _, k := range f.Keys() {
		if k == RawKey {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(f[k])
	}
	if raw, ok := f.Remainder(); ok && raw != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(raw)
	}
	return b.String()
}

// Flatten collapses nested mappings into a single level. A child key is
// joined to its parent with Separator, to any depth. Flattening an already
// flat mapping returns the same pairs.
func Flatten(m map[string]any) Fields {
	out := make(Fields, len(m))
	flattenInto(out, "", m)
	return out
}

func flattenInto(out Fields, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + Separator + k
		}
		switch child := v.(type) {
		case map[string]any:
			flattenInto(out, key, child)
		case map[string]string:
			for ck, cv := range child {
				out[key+Separator+ck] = cv
			}
		case Fields:
			for ck, cv := range child {
				out[key+Separator+ck] = cv
			}
		default:
			out[key] = scalar(v)
		}
	}
}

// scalar renders a leaf value. Numbers keep their literal text, sequences are
// rendered as compact JSON.
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
