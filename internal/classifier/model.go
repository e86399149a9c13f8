package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/af-corp/aegis-ids/internal/types"
)

// LinearModel is a fitted one-vs-rest linear classifier over TF-IDF features.
type LinearModel struct {
	Classes   []int       `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

func (m *LinearModel) validate(dim int) error {
	if len(m.Classes) < 2 {
		return fmt.Errorf("model: need at least 2 classes, got %d", len(m.Classes))
	}
	rows := len(m.Classes)
	if rows == 2 && len(m.Coef) == 1 {
		rows = 1
	}
	if len(m.Coef) != rows {
		return fmt.Errorf("model: %d coefficient rows for %d classes", len(m.Coef), len(m.Classes))
	}
	if len(m.Intercept) != 0 && len(m.Intercept) != rows {
		return fmt.Errorf("model: %d intercepts for %d coefficient rows", len(m.Intercept), rows)
	}
	for i, row := range m.Coef {
		if len(row) != dim {
			return fmt.Errorf("model: coefficient row %d has %d features, vectorizer has %d", i, len(row), dim)
		}
	}
	return nil
}

func (m *LinearModel) score(row int, x SparseVector) float64 {
	var s float64
	if len(m.Intercept) > 0 {
		s = m.Intercept[row]
	}
	coef := m.Coef[row]
	for idx, w := range x {
		s += coef[idx] * w
	}
	return s
}

// Predict returns the class id with the highest decision score.
func (m *LinearModel) Predict(x SparseVector) int {
	if len(m.Coef) == 1 {
		if m.score(0, x) > 0 {
			return m.Classes[1]
		}
		return m.Classes[0]
	}
	best, bestScore := 0, m.score(0, x)
	for i := 1; i < len(m.Coef); i++ {
		if s := m.score(i, x); s > bestScore {
			best, bestScore = i, s
		}
	}
	return m.Classes[best]
}

// Model is the in-process classifier: a vectorizer and a linear model.
type Model struct {
	vec    *Vectorizer
	linear *LinearModel
}

// NewModel pairs a vectorizer export with a linear model, checking that their dimensions agree.
func NewModel(vec *Vectorizer, linear *LinearModel) (*Model, error) {
	if err := linear.validate(vec.Dim()); err != nil {
		return nil, err
	}
	return &Model{vec: vec, linear: linear}, nil
}

// Load reads the model and vectorizer artifacts from disk.
func Load(modelPath, vectorizerPath string) (*Model, error) {
	var vf vectorizerFile
	if err := readJSON(vectorizerPath, &vf); err != nil {
		return nil, fmt.Errorf("loading vectorizer: %w", err)
	}
	vec, err := newVectorizer(vf)
	if err != nil {
		return nil, err
	}

	var lm LinearModel
	if err := readJSON(modelPath, &lm); err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	return NewModel(vec, &lm)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Classify vectorizes text and maps the predicted class to a label.
func (m *Model) Classify(ctx context.Context, text string) (types.Label, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := m.linear.Predict(m.vec.Transform(text))
	label, err := types.LabelForClass(id)
	if err != nil {
		return "", fmt.Errorf("%w: %d", ErrUnknownClass, id)
	}
	return label, nil
}
