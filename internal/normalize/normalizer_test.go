package normalize

import (
	"reflect"
	"testing"
)

func TestNormalize_URLEncodedString(t *testing.T) {
	got := Normalize("username=admin&password=hunter2")
	want := Fields{"username": "admin", "password": "hunter2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_FormdataEnvelope(t *testing.T) {
	got := Normalize(`[{"args":{"formdata":"sesskey=abc123&action=login"}}]`)
	want := Fields{"sesskey": "abc123", "action": "login"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_NamedArgsList(t *testing.T) {
	body := `[{"index":0,"methodname":"core_fetch","args":[{"name":"q","value":"a=1&b=2"},{"name":"id","value":"7"},{"value":"nameless"}]}]`
	got := Normalize(body)
	want := Fields{
		"index":      "0",
		"methodname": "core_fetch",
		"q.a":        "1",
		"q.b":        "2",
		"id":         "7",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_JSONObject(t *testing.T) {
	got := Normalize(`{"id": 10, "ok": true, "tags": ["x","y"], "n": null, "price": 1.50}`)
	want := Fields{
		"id":    "10",
		"ok":    "true",
		"tags":  `["x","y"]`,
		"n":     "",
		"price": "1.50",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_StructuredMapping(t *testing.T) {
	in := map[string]any{
		"user": map[string]any{
			"name":  "bob",
			"prefs": map[string]any{"lang": "en"},
		},
		"page": "1",
	}
	got := Normalize(in)
	want := Fields{
		"user||name":        "bob",
		"user||prefs||lang": "en",
		"page":              "1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
	if _, ok := in["user"].(map[string]any); !ok {
		t.Error("input mapping must not be modified")
	}
}

func TestNormalize_RawInsideMapping(t *testing.T) {
	got := Normalize(map[string]any{"raw": "q=%3Cscript%3E&x=1"})
	want := Fields{"q": "<script>", "x": "1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_FormdataSentinels(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want Fields
	}{
		{
			name: "plain sentinel",
			in:   map[string]any{"formdata": "sesskey=abc&action=x index=0 methodname=foo"},
			want: Fields{"sesskey": "abc", "action": "x"},
		},
		{
			name: "http version sentinel",
			in:   map[string]any{"formdata": "a=1&b=2 HTTP/1.1"},
			want: Fields{"a": "1", "b": "2"},
		},
		{
			name: "encoded sentinel",
			in:   map[string]any{"formdata": "sesskey=abc&action=x+index=0"},
			want: Fields{"sesskey": "abc", "action": "x"},
		},
		{
			name: "no pairs keeps field",
			in:   map[string]any{"formdata": "="},
			want: Fields{"formdata": "="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Fields
	}{
		{"malformed json", "{bad json", Fields{"raw": "{bad json"}},
		{"plain text", "not json at all", Fields{"raw": "not json at all"}},
		{"json scalar", "true", Fields{"raw": "true"}},
		{"empty list", "[]", Fields{"raw": "[]"}},
		{"list of scalars", `["a","b"]`, Fields{"raw": `["a","b"]`}},
		{"trailing garbage", `{"a":"1"} tail`, Fields{"raw": `{"a":"1"} tail`}},
		{"number value", 42, Fields{"raw": "42"}},
		{"nil", nil, Fields{}},
		{"empty string", "   ", Fields{}},
		{"bad escape", "a=%zz&b=1", Fields{"a": "%zz", "b": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_FallbackHook(t *testing.T) {
	var stages []string
	n := &Normalizer{OnFallback: func(stage string, err error) {
		if err == nil {
			t.Errorf("stage %s reported nil error", stage)
		}
		stages = append(stages, stage)
	}}

	n.Normalize("hello world")

	want := []string{StageJSON, StageRaw}
	if !reflect.DeepEqual(stages, want) {
		t.Errorf("stages = %v, want %v", stages, want)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	body := `[{"args":[{"name":"f","value":"z=1&y=2&x=3"}],"b":{"c":"d","e":{"f":"g"}}}]`
	first := BuildCanonical("post", "/ajax", Normalize(body))
	for i := 0; i < 50; i++ {
		if got := BuildCanonical("post", "/ajax", Normalize(body)); got != first {
			t.Fatalf("iteration %d: %q != %q", i, got, first)
		}
	}
}

func TestNormalize_EquivalentPayloadsShareCanonical(t *testing.T) {
	fromJSON := BuildCanonical("POST", "/form", Normalize(`{"b":"2","a":"1"}`))
	fromQuery := BuildCanonical("POST", "/form", Normalize("a=1&b=2"))
	if fromJSON != fromQuery {
		t.Errorf("canonical texts differ: %q vs %q", fromJSON, fromQuery)
	}
	if fromJSON != "POST /form a=1 b=2" {
		t.Errorf("unexpected canonical text %q", fromJSON)
	}
}
