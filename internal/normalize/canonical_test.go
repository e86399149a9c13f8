package normalize

import (
	"reflect"
	"testing"

	"github.com/af-corp/aegis-ids/internal/types"
)

func TestBuildCanonical(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   string
	}{
		{"empty body", "GET", "/", nil, "GET /"},
		{"empty fields", " get ", " / ", Fields{}, "GET /"},
		{"fields in key order", "post", "/login", Fields{"username": "admin", "password": "x"}, "POST /login password=x username=admin"},
		{"string body verbatim", "POST", "/x", "a=1&b=2", "POST /x a=1&b=2"},
		{"nested mapping", "PUT", "/u", map[string]any{"a": map[string]any{"b": "c"}}, "PUT /u a||b=c"},
		{"html entities unescaped", "GET", "/s", Fields{"q": "&lt;script&gt;"}, "GET /s q=<script>"},
		{"missing method", "", "/only", nil, "/only"},
		{"missing method and url", "", "  ", Fields{"a": "1"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildCanonical(tt.method, tt.url, tt.body); got != tt.want {
				t.Errorf("BuildCanonical = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalize_RawRemainderUsedAsBody(t *testing.T) {
	var n Normalizer
	text, fields := n.Canonicalize(types.RequestDescriptor{Method: "post", URL: "/x", Body: "{oops"})

	if text != "POST /x {oops" {
		t.Errorf("canonical = %q", text)
	}
	if raw, ok := fields.Remainder(); !ok || raw != "{oops" {
		t.Errorf("remainder = %q, %v", raw, ok)
	}
}

func TestFlatten_Idempotent(t *testing.T) {
	flat := map[string]any{"a": "1", "b||c": "2", "d": "x y"}
	once := Flatten(flat)

	again := make(map[string]any, len(once))
	for k, v := range once {
		again[k] = v
	}
	twice := Flatten(again)

	want := Fields{"a": "1", "b||c": "2", "d": "x y"}
	if !reflect.DeepEqual(once, want) {
		t.Errorf("Flatten = %v, want %v", once, want)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("flattening twice changed the result: %v vs %v", once, twice)
	}
}

func TestFields_String(t *testing.T) {
	f := Fields{"b": "2", "a": "1", RawKey: "tail text"}
	if got := f.String(); got != "a=1 b=2 tail text" {
		t.Errorf("String() = %q", got)
	}
	if got := (Fields{}).String(); got != "" {
		t.Errorf("empty String() = %q", got)
	}
}
