package ml

import (
	"fmt"
	"math"
	"testing"
)

func fixtureReviews() Dataset {
	positive := []string{"great", "excellent", "love", "wonderful", "amazing", "fantastic"}
	negative := []string{"terrible", "awful", "hate", "broken", "poor", "disappointing"}
	nouns := []string{"product", "service", "quality", "delivery", "price"}

	var ds Dataset
	for i := 0; i < 30; i++ {
		noun := nouns[i%len(nouns)]
		ds.Texts = append(ds.Texts, fmt.Sprintf("%s %s, %s overall", positive[i%len(positive)], noun, positive[(i+1)%len(positive)]))
		ds.Labels = append(ds.Labels, 1)
		ds.Texts = append(ds.Texts, fmt.Sprintf("%s %s, %s overall", negative[i%len(negative)], noun, negative[(i+2)%len(negative)]))
		ds.Labels = append(ds.Labels, 0)
	}
	return ds
}

func trainFixture(t *testing.T) (*Pipeline, Split, float64) {
	t.Helper()
	split, err := TrainTestSplit(fixtureReviews(), DefaultTestRatio, DefaultRandomState)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	model := NewPipeline()
	if _, err := model.Fit(split.TrainX, split.TrainY); err != nil {
		t.Fatalf("fit: %v", err)
	}
	pred, err := model.Predict(split.TestX)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	acc, err := Accuracy(split.TestY, pred)
	if err != nil {
		t.Fatalf("accuracy: %v", err)
	}
	return model, split, acc
}

func TestPipelineSeparatesFixture(t *testing.T) {
	model, _, acc := trainFixture(t)
	if acc < 0.9 {
		t.Fatalf("expected accuracy >= 0.9 on separable fixture, got %f", acc)
	}

	class, err := model.PredictOne("great product")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := model.Label(class); got != "Positive" {
		t.Fatalf("expected Positive for %q, got %s", "great product", got)
	}
	class, _ = model.PredictOne("awful broken delivery")
	if got := model.Label(class); got != "Negative" {
		t.Fatalf("expected Negative, got %s", got)
	}
}

func TestTrainingIsReproducible(t *testing.T) {
	first, _, accA := trainFixture(t)
	second, _, accB := trainFixture(t)
	if accA != accB {
		t.Fatalf("accuracy differs between runs: %v vs %v", accA, accB)
	}
	for i := range first.Classifier.Coef {
		if first.Classifier.Coef[i] != second.Classifier.Coef[i] {
			t.Fatalf("coefficient %d differs between runs", i)
		}
	}
}

func TestArtifactRoundTripReproducesAccuracy(t *testing.T) {
	model, split, acc := trainFixture(t)

	payload, err := EncodeModel(model)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	loaded, err := LoadModel(FlavorTFIDFLogReg, payload)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	pred, err := loaded.Predict(split.TestX)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	got, _ := Accuracy(split.TestY, pred)
	if got != acc {
		t.Fatalf("reloaded accuracy %v != logged %v", got, acc)
	}
	if loaded.Label(1) != "Positive" || loaded.Label(0) != "Negative" {
		t.Fatalf("label set lost in round trip")
	}
}

func TestLoadModelRejectsUnknownFlavor(t *testing.T) {
	if _, err := LoadModel("decision_tree", []byte("{}")); err == nil {
		t.Fatal("expected error for unknown flavor")
	}
	if _, err := LoadModel(FlavorTFIDFLogReg, []byte(`{"flavor":"tfidf_logreg","version":1}`)); err == nil {
		t.Fatal("expected error for incomplete document")
	}
}

func TestPipelineUntrained(t *testing.T) {
	if _, err := NewPipeline().PredictOne("hello"); err == nil {
		t.Fatal("expected error for untrained model")
	}
}

func TestLogisticRegressionSingleClass(t *testing.T) {
	lr := NewLogisticRegression()
	x := []SparseVector{{Indices: []int{0}, Values: []float64{1}}, {Indices: []int{0}, Values: []float64{0.5}}}
	if _, err := lr.Fit(x, []int{1, 1}, 1); err == nil {
		t.Fatal("expected error for single-class labels")
	}
}

func TestLogisticRegressionProbabilities(t *testing.T) {
	lr := NewLogisticRegression()
	lr.C = 100
	x := []SparseVector{
		{Indices: []int{0}, Values: []float64{1}},
		{Indices: []int{1}, Values: []float64{1}},
		{Indices: []int{0}, Values: []float64{1}},
		{Indices: []int{1}, Values: []float64{1}},
	}
	if _, err := lr.Fit(x, []int{1, 0, 1, 0}, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := lr.PredictProba(x[0])
	if p <= 0.5 || p >= 1 || math.IsNaN(p) {
		t.Fatalf("unexpected positive probability %f", p)
	}
	if lr.Predict(x[1]) != 0 {
		t.Fatal("expected negative prediction")
	}
}

func TestLabelSet(t *testing.T) {
	labels := DefaultLabelSet()
	if labels.Label(1) != "Positive" || labels.Label(0) != "Negative" || labels.Label(7) != "Negative" {
		t.Fatalf("unexpected label mapping")
	}
}
