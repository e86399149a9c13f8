// Package normalize reduces arbitrarily shaped HTTP payloads to a flat,
// deterministic field set and builds the canonical text fed to the
// classifier and the prediction cache.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Decode stages reported to a Normalizer's fallback hook.
const (
	StageJSON     = "json"
	StageEnvelope = "envelope"
	StageRaw      = "raw"
	StageFormdata = "formdata"
	StagePanic    = "panic"
)

const (
	argsKey     = "args"
	formdataKey = "formdata"
)

var errNoPairs = errors.New("no key=value pairs recovered")

// Normalizer decodes request bodies. The zero value is ready to use.
type Normalizer struct {
	// OnFallback is called whenever a decode stage degrades to a less
	// structured form. It must not block.
	OnFallback func(stage string, err error)
}

// Normalize decodes raw with a zero Normalizer.
func Normalize(raw any) Fields {
	var n Normalizer
	return n.Normalize(raw)
}

// Normalize decodes a body of unknown shape into flat fields. It never
// fails: undecodable input ends up under RawKey.
func (n *Normalizer) Normalize(raw any) (fields Fields) {
	defer func() {
		if r := recover(); r != nil {
			n.fallback(StagePanic, fmt.Errorf("%v", r))
			fields = Fields{RawKey: fmt.Sprint(raw)}
		}
	}()

	body := n.decode(raw)
	n.expandRaw(body)
	n.expandFormdata(body)
	return Flatten(body)
}

func (n *Normalizer) fallback(stage string, err error) {
	if n != nil && n.OnFallback != nil {
		n.OnFallback(stage, err)
	}
}

func (n *Normalizer) decode(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return copyMap(v)
	case map[string]string:
		return stringMap(v)
	case Fields:
		return stringMap(v)
	case []any:
		if body, ok := n.fromList(v); ok {
			return body
		}
		return map[string]any{RawKey: scalar(v)}
	case []byte:
		return n.decodeString(string(v))
	case json.RawMessage:
		return n.decodeString(string(v))
	case string:
		return n.decodeString(v)
	default:
		return map[string]any{RawKey: fmt.Sprint(v)}
	}
}

func (n *Normalizer) decodeString(s string) map[string]any {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}
	}

	parsed, err := decodeJSON(s)
	if err != nil {
		n.fallback(StageJSON, err)
		return map[string]any{RawKey: s}
	}

	switch p := parsed.(type) {
	case map[string]any:
		return p
	case []any:
		if body, ok := n.fromList(p); ok {
			return body
		}
	}
	return map[string]any{RawKey: s}
}

// decodeJSON decodes exactly one JSON value, keeping numbers as literals.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// fromList unwraps the AJAX envelope: the first element of the list is the
// body and its args field is merged into it.
func (n *Normalizer) fromList(list []any) (map[string]any, bool) {
	if len(list) == 0 {
		return nil, false
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		n.fallback(StageEnvelope, fmt.Errorf("first element is %T, not an object", list[0]))
		return nil, false
	}

	body := copyMap(first)
	args, ok := body[argsKey]
	if !ok {
		return body, true
	}
	delete(body, argsKey)

	switch a := args.(type) {
	case map[string]any:
		for k, v := range a {
			body[k] = v
		}
	case []any:
		mergeNamedArgs(body, a)
	}
	return body, true
}

// mergeNamedArgs merges a list of {name, value} objects. A value holding an
// encoded query string is expanded into name.key fields.
func mergeNamedArgs(body map[string]any, args []any) {
	for _, item := range args {
		arg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := arg["name"].(string)
		if name == "" {
			continue
		}
		value := arg["value"]
		s, isString := value.(string)
		if !isString || !looksLikeQuery(s) {
			body[name] = value
			continue
		}
		pairs := parseQuery(s)
		if len(pairs) == 0 {
			body[name] = s
			continue
		}
		for _, p := range pairs {
			body[name+"."+p.key] = p.value
		}
	}
}

// expandRaw reinterprets a raw remainder as a URL-encoded query string.
func (n *Normalizer) expandRaw(body map[string]any) {
	raw, ok := body[RawKey].(string)
	if !ok {
		return
	}
	pairs := parseQuery(UnquotePlus(raw))
	if len(pairs) == 0 {
		n.fallback(StageRaw, errNoPairs)
		return
	}
	for _, p := range pairs {
		body[p.key] = p.value
	}
	delete(body, RawKey)
}

// expandFormdata decodes an embedded formdata query string and merges its
// pairs in place of the envelope field.
func (n *Normalizer) expandFormdata(body map[string]any) {
	fd, ok := body[formdataKey].(string)
	if !ok || !strings.Contains(fd, "=") {
		return
	}

	segment := cutAtSentinel(fd)
	if len(segment) == len(fd) {
		if decoded := UnquotePlus(fd); cutAtSentinel(decoded) != decoded {
			segment = cutAtSentinel(decoded)
		}
	}

	pairs := parseQuery(segment)
	if len(pairs) == 0 {
		n.fallback(StageFormdata, errNoPairs)
		return
	}
	delete(body, formdataKey)
	for _, p := range pairs {
		body[p.key] = p.value
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
