package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/af-corp/aegis-ids/internal/types"
)

func loadFixture(t *testing.T) *Model {
	t.Helper()
	m, err := Load("testdata/model.json", "testdata/vectorizer.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return m
}

func TestModel_Classify(t *testing.T) {
	m := loadFixture(t)

	tests := []struct {
		name string
		text string
		want types.Label
	}{
		{"benign", "GET /hello", types.LabelNormal},
		{"empty falls to intercept", "", types.LabelNormal},
		{"sql injection", "GET /?q=UNION SELECT 1", types.LabelSQLInjection},
		{"case insensitive", "GET /?q=union select", types.LabelSQLInjection},
		{"xss", "GET /<script>alert(1)</script>", types.LabelXSS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Classify(%q) error: %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestModel_ClassifyCanceledContext(t *testing.T) {
	m := loadFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Classify(ctx, "GET /"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestVectorizer_TransformL2Normalized(t *testing.T) {
	m := loadFixture(t)
	vec := m.vec.Transform("UNION SELECT")

	// union, select and the bigram "union select"
	if len(vec) != 3 {
		t.Fatalf("expected 3 active features, got %v", vec)
	}
	var sum float64
	for _, w := range vec {
		sum += w * w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("expected unit norm, got %f", sum)
	}
}

func TestVectorizer_SublinearTF(t *testing.T) {
	v, err := newVectorizer(vectorizerFile{
		Vocabulary:  map[string]int{"aa": 0, "bb": 1},
		SublinearTF: true,
		Norm:        "none",
	})
	if err != nil {
		t.Fatal(err)
	}
	vec := v.Transform("aa aa aa bb")
	if want := 1 + math.Log(3); math.Abs(vec[0]-want) > 1e-9 {
		t.Errorf("aa weight = %f, want %f", vec[0], want)
	}
	if vec[1] != 1 {
		t.Errorf("bb weight = %f, want 1", vec[1])
	}
}

func TestNewVectorizer_Rejects(t *testing.T) {
	tests := []struct {
		name string
		f    vectorizerFile
	}{
		{"empty vocabulary", vectorizerFile{}},
		{"char analyzer", vectorizerFile{Vocabulary: map[string]int{"ab": 0}, Analyzer: "char"}},
		{"idf mismatch", vectorizerFile{Vocabulary: map[string]int{"ab": 0}, IDF: []float64{1, 2}}},
		{"index out of range", vectorizerFile{Vocabulary: map[string]int{"ab": 3}}},
		{"bad norm", vectorizerFile{Vocabulary: map[string]int{"ab": 0}, Norm: "max"}},
		{"bad pattern", vectorizerFile{Vocabulary: map[string]int{"ab": 0}, TokenPattern: "(?<=a)b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newVectorizer(tt.f); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLinearModel_Binary(t *testing.T) {
	lm := &LinearModel{
		Classes:   []int{0, 2},
		Coef:      [][]float64{{2}},
		Intercept: []float64{-1},
	}
	if err := lm.validate(1); err != nil {
		t.Fatal(err)
	}
	if got := lm.Predict(SparseVector{0: 1}); got != 2 {
		t.Errorf("positive score should pick second class, got %d", got)
	}
	if got := lm.Predict(SparseVector{}); got != 0 {
		t.Errorf("negative score should pick first class, got %d", got)
	}
}

func TestNewModel_DimensionMismatch(t *testing.T) {
	vec, err := newVectorizer(vectorizerFile{Vocabulary: map[string]int{"aa": 0, "bb": 1}})
	if err != nil {
		t.Fatal(err)
	}
	lm := &LinearModel{Classes: []int{0, 1, 2}, Coef: [][]float64{{1}, {1}, {1}}}
	if _, err := NewModel(vec, lm); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestModel_UnknownClass(t *testing.T) {
	vec, _ := newVectorizer(vectorizerFile{Vocabulary: map[string]int{"aa": 0}})
	lm := &LinearModel{Classes: []int{0, 7}, Coef: [][]float64{{1}}}
	m, err := NewModel(vec, lm)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Classify(context.Background(), "aa"); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("expected ErrUnknownClass, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{not json"), 0o644)

	if _, err := Load("testdata/model.json", filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing vectorizer")
	}
	if _, err := Load(bad, "testdata/vectorizer.json"); err == nil {
		t.Error("expected error for malformed model")
	}
}

func TestRemote_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Text {
		case "by-id":
			w.Write([]byte(`{"class_id": 1}`))
		case "by-label":
			w.Write([]byte(`{"label": "XSS"}`))
		case "unknown":
			w.Write([]byte(`{"class_id": 9}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, 0)
	ctx := context.Background()

	if got, err := r.Classify(ctx, "by-id"); err != nil || got != types.LabelSQLInjection {
		t.Errorf("by-id: got %q, %v", got, err)
	}
	if got, err := r.Classify(ctx, "by-label"); err != nil || got != types.LabelXSS {
		t.Errorf("by-label: got %q, %v", got, err)
	}
	if _, err := r.Classify(ctx, "unknown"); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("unknown: expected ErrUnknownClass, got %v", err)
	}
	if _, err := r.Classify(ctx, "other"); err == nil {
		t.Error("expected error on 500")
	}
}

func TestFuncAndProbe(t *testing.T) {
	var seen string
	f := Func(func(_ context.Context, text string) (types.Label, error) {
		seen = text
		return types.LabelNormal, nil
	})
	if err := Probe(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if seen != "GET /" {
		t.Errorf("probe text = %q", seen)
	}
}
