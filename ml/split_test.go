package ml

import (
	"reflect"
	"testing"
)

func TestTrainTestSplitDeterministic(t *testing.T) {
	ds := fixtureReviews()
	a, err := TrainTestSplit(ds, DefaultTestRatio, DefaultRandomState)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := TrainTestSplit(ds, DefaultTestRatio, DefaultRandomState)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different splits")
	}
	if len(a.TestX) != 12 || len(a.TrainX) != 48 {
		t.Fatalf("unexpected split sizes train=%d test=%d", len(a.TrainX), len(a.TestX))
	}
}

func TestTrainTestSplitCeilsTestSize(t *testing.T) {
	ds := Dataset{Texts: []string{"a", "b", "c", "d", "e", "f", "g"}, Labels: []int{0, 1, 0, 1, 0, 1, 0}}
	split, err := TrainTestSplit(ds, 0.2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(split.TestX) != 2 || len(split.TrainX) != 5 {
		t.Fatalf("expected 5/2 split, got %d/%d", len(split.TrainX), len(split.TestX))
	}
	seen := map[string]bool{}
	for _, x := range append(append([]string{}, split.TrainX...), split.TestX...) {
		if seen[x] {
			t.Fatalf("row %q appears twice", x)
		}
		seen[x] = true
	}
}

func TestTrainTestSplitTooSmall(t *testing.T) {
	if _, err := TrainTestSplit(Dataset{Texts: []string{"a"}, Labels: []int{1}}, 0.2, 1); err == nil {
		t.Fatal("expected error for single row")
	}
}
