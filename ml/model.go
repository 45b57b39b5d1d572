package ml

// TextClassifier is the read-only inference surface the server needs.
type TextClassifier interface {
	PredictOne(text string) (int, error)
	Label(class int) string
}

type TrainableClassifier interface {
	TextClassifier
	Fit(texts []string, labels []int) (FitReport, error)
	Predict(texts []string) ([]int, error)
	Flavor() string
}
