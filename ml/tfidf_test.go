package ml

import (
	"math"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Great Product!", []string{"great", "product"}},
		{"a b cd", []string{"cd"}},
		{"it's 10/10, snake_case", []string{"it", "10", "10", "snake_case"}},
		{"Café CAFÉ", []string{"café", "café"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTFIDFSmoothedIDF(t *testing.T) {
	vec := &TFIDF{}
	if err := vec.Fit([]string{"apple banana", "apple cherry"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec.Vocabulary["apple"] != 0 || vec.Vocabulary["banana"] != 1 || vec.Vocabulary["cherry"] != 2 {
		t.Fatalf("vocabulary not sorted: %v", vec.Vocabulary)
	}
	if vec.IDF[0] != 1 {
		t.Fatalf("expected idf(apple)=1, got %f", vec.IDF[0])
	}
	wantRare := math.Log(3.0/2.0) + 1
	if math.Abs(vec.IDF[1]-wantRare) > 1e-12 {
		t.Fatalf("expected idf(banana)=%f, got %f", wantRare, vec.IDF[1])
	}

	v := vec.Transform("banana apple unknown")
	if !reflect.DeepEqual(v.Indices, []int{0, 1}) {
		t.Fatalf("unexpected indices %v", v.Indices)
	}
	norm := 0.0
	for _, x := range v.Values {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-12 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
	if v.Values[1] <= v.Values[0] {
		t.Fatalf("rarer term should weigh more: %v", v.Values)
	}
}

func TestTFIDFUnknownDocumentIsZero(t *testing.T) {
	vec := &TFIDF{}
	if err := vec.Fit([]string{"apple banana"}); err != nil {
		t.Fatal(err)
	}
	if v := vec.Transform("zebra"); len(v.Indices) != 0 {
		t.Fatalf("expected empty vector, got %v", v)
	}
}

func TestTFIDFEmptyVocabulary(t *testing.T) {
	if err := (&TFIDF{}).Fit([]string{"a b c"}); err == nil {
		t.Fatal("expected error for empty vocabulary")
	}
}
