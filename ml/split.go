package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const (
	DefaultTestRatio   = 0.2
	DefaultRandomState = 42
)

type Split struct {
	TrainX []string
	TrainY []int
	TestX  []string
	TestY  []int
}

// TrainTestSplit shuffles with a fixed seed so the same dataset always
// yields the same partition. The test side holds ceil(n*testRatio) rows.
func TrainTestSplit(ds Dataset, testRatio float64, seed int64) (Split, error) {
	if len(ds.Texts) != len(ds.Labels) {
		return Split{}, errors.New("texts and labels size mismatch")
	}
	n := len(ds.Texts)
	if n < 2 {
		return Split{}, fmt.Errorf("need at least 2 rows to split, got %d", n)
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = DefaultTestRatio
	}

	nTest := int(math.Ceil(float64(n) * testRatio))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return Split{}, fmt.Errorf("test ratio %.2f leaves an empty side for %d rows", testRatio, n)
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	split := Split{
		TrainX: make([]string, 0, nTrain),
		TrainY: make([]int, 0, nTrain),
		TestX:  make([]string, 0, nTest),
		TestY:  make([]int, 0, nTest),
	}
	for i, idx := range indices {
		if i < nTest {
			split.TestX = append(split.TestX, ds.Texts[idx])
			split.TestY = append(split.TestY, ds.Labels[idx])
		} else {
			split.TrainX = append(split.TrainX, ds.Texts[idx])
			split.TrainY = append(split.TrainY, ds.Labels[idx])
		}
	}
	return split, nil
}
