package ml

import (
	"errors"
	"math"
	"sort"
)

// SparseVector holds non-zero entries with strictly increasing indices.
type SparseVector struct {
	Indices []int
	Values  []float64
}

func (v SparseVector) Dot(dense []float64) float64 {
	sum := 0.0
	for i, idx := range v.Indices {
		sum += dense[idx] * v.Values[i]
	}
	return sum
}

// TFIDF is a smoothed-idf, l2-normalised bag-of-words vectorizer.
type TFIDF struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

func (t *TFIDF) Fit(texts []string) error {
	if len(texts) == 0 {
		return errors.New("no documents to fit")
	}
	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errors.New("empty vocabulary; documents contain no tokens")
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(texts))
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	t.Vocabulary = vocab
	t.IDF = idf
	return nil
}

func (t *TFIDF) Size() int { return len(t.IDF) }

func (t *TFIDF) Transform(text string) SparseVector {
	counts := make(map[int]float64)
	for _, tok := range Tokenize(text) {
		if idx, ok := t.Vocabulary[tok]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	norm := 0.0
	for i, idx := range indices {
		values[i] = counts[idx] * t.IDF[idx]
		norm += values[i] * values[i]
	}
	norm = math.Sqrt(norm)
	for i := range values {
		values[i] /= norm
	}
	return SparseVector{Indices: indices, Values: values}
}

func (t *TFIDF) TransformAll(texts []string) []SparseVector {
	out := make([]SparseVector, len(texts))
	for i, text := range texts {
		out[i] = t.Transform(text)
	}
	return out
}
