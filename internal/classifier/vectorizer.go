package classifier

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

const defaultTokenPattern = `\b\w\w+\b`

// SparseVector maps feature index to weight.
type SparseVector map[int]float64

// vectorizerFile is the JSON export of a fitted TF-IDF vectorizer.
type vectorizerFile struct {
	Vocabulary   map[string]int `json:"vocabulary"`
	IDF          []float64      `json:"idf"`
	Lowercase    *bool          `json:"lowercase"`
	TokenPattern string         `json:"token_pattern"`
	NGramRange   [2]int         `json:"ngram_range"`
	SublinearTF  bool           `json:"sublinear_tf"`
	Norm         string         `json:"norm"`
	Analyzer     string         `json:"analyzer"`
}

// Vectorizer turns text into a TF-IDF weighted word n-gram vector.
type Vectorizer struct {
	vocabulary  map[string]int
	idf         []float64
	lowercase   bool
	token       *regexp.Regexp
	minN, maxN  int
	sublinearTF bool
	norm        string
}

func newVectorizer(f vectorizerFile) (*Vectorizer, error) {
	if len(f.Vocabulary) == 0 {
		return nil, fmt.Errorf("vectorizer: empty vocabulary")
	}
	if f.Analyzer != "" && f.Analyzer != "word" {
		return nil, fmt.Errorf("vectorizer: unsupported analyzer %q", f.Analyzer)
	}
	if len(f.IDF) != 0 && len(f.IDF) != len(f.Vocabulary) {
		return nil, fmt.Errorf("vectorizer: idf has %d entries for %d terms", len(f.IDF), len(f.Vocabulary))
	}
	for term, idx := range f.Vocabulary {
		if idx < 0 || idx >= len(f.Vocabulary) {
			return nil, fmt.Errorf("vectorizer: term %q has out-of-range index %d", term, idx)
		}
	}

	pattern := f.TokenPattern
	if pattern == "" {
		pattern = defaultTokenPattern
	}
	// Go regexps are Unicode-aware without the (?u) flag.
	pattern = strings.TrimPrefix(pattern, "(?u)")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("vectorizer: token pattern: %w", err)
	}

	minN, maxN := f.NGramRange[0], f.NGramRange[1]
	if minN <= 0 {
		minN = 1
	}
	if maxN < minN {
		maxN = minN
	}

	switch f.Norm {
	case "", "l1", "l2", "none":
	default:
		return nil, fmt.Errorf("vectorizer: unsupported norm %q", f.Norm)
	}
	norm := f.Norm
	if norm == "" {
		norm = "l2"
	}

	lowercase := true
	if f.Lowercase != nil {
		lowercase = *f.Lowercase
	}

	return &Vectorizer{
		vocabulary:  f.Vocabulary,
		idf:         f.IDF,
		lowercase:   lowercase,
		token:       re,
		minN:        minN,
		maxN:        maxN,
		sublinearTF: f.SublinearTF,
		norm:        norm,
	}, nil
}

// Dim returns the feature space dimensionality.
func (v *Vectorizer) Dim() int { return len(v.vocabulary) }

// Transform vectorizes one document.
func (v *Vectorizer) Transform(text string) SparseVector {
	if v.lowercase {
		text = strings.ToLower(text)
	}
	tokens := v.token.FindAllString(text, -1)

	counts := make(map[int]float64)
	for n := v.minN; n <= v.maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := tokens[i]
			if n > 1 {
				gram = strings.Join(tokens[i:i+n], " ")
			}
			if idx, ok := v.vocabulary[gram]; ok {
				counts[idx]++
			}
		}
	}

	vec := make(SparseVector, len(counts))
	for idx, c := range counts {
		tf := c
		if v.sublinearTF {
			tf = 1 + math.Log(c)
		}
		if len(v.idf) > 0 {
			tf *= v.idf[idx]
		}
		vec[idx] = tf
	}
	v.normalize(vec)
	return vec
}

func (v *Vectorizer) normalize(vec SparseVector) {
	var total float64
	switch v.norm {
	case "l2":
		for _, w := range vec {
			total += w * w
		}
		total = math.Sqrt(total)
	case "l1":
		for _, w := range vec {
			total += math.Abs(w)
		}
	default:
		return
	}
	if total == 0 {
		return
	}
	for idx := range vec {
		vec[idx] /= total
	}
}
