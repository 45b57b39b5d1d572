package ml

import "errors"

func Accuracy(yTrue, yPred []int) (float64, error) {
	if len(yTrue) == 0 {
		return 0, errors.New("no samples to score")
	}
	if len(yTrue) != len(yPred) {
		return 0, errors.New("labels and predictions size mismatch")
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}
