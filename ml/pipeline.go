package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	FlavorTFIDFLogReg = "tfidf_logreg"
	ModelFamily       = "LogisticRegression"
	formatVersion     = 1
)

// LabelSet is the class-to-label contract shipped with every artifact.
type LabelSet struct {
	PositiveClass int    `json:"positive_class"`
	Positive      string `json:"positive"`
	Negative      string `json:"negative"`
}

func DefaultLabelSet() LabelSet {
	return LabelSet{PositiveClass: 1, Positive: "Positive", Negative: "Negative"}
}

func (l LabelSet) Label(class int) string {
	if class == l.PositiveClass {
		return l.Positive
	}
	return l.Negative
}

// Pipeline chains the TF-IDF vectorizer and the logistic regression. It is
// read-only after Fit or Unmarshal and safe for concurrent prediction.
type Pipeline struct {
	Vectorizer *TFIDF
	Classifier *LogisticRegression
	Labels     LabelSet
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		Vectorizer: &TFIDF{},
		Classifier: NewLogisticRegression(),
		Labels:     DefaultLabelSet(),
	}
}

func (p *Pipeline) Fit(texts []string, labels []int) (FitReport, error) {
	if len(texts) != len(labels) {
		return FitReport{}, errors.New("texts and labels size mismatch")
	}
	if err := p.Vectorizer.Fit(texts); err != nil {
		return FitReport{}, fmt.Errorf("fit vectorizer: %w", err)
	}
	features := p.Vectorizer.TransformAll(texts)
	report, err := p.Classifier.Fit(features, labels, p.Vectorizer.Size())
	if err != nil {
		return FitReport{}, fmt.Errorf("fit classifier: %w", err)
	}
	return report, nil
}

func (p *Pipeline) trained() bool {
	return p.Vectorizer != nil && p.Classifier != nil &&
		len(p.Classifier.Coef) > 0 && len(p.Classifier.Coef) == p.Vectorizer.Size()
}

func (p *Pipeline) PredictOne(text string) (int, error) {
	if !p.trained() {
		return 0, errors.New("model not trained")
	}
	return p.Classifier.Predict(p.Vectorizer.Transform(text)), nil
}

func (p *Pipeline) Predict(texts []string) ([]int, error) {
	if !p.trained() {
		return nil, errors.New("model not trained")
	}
	out := make([]int, len(texts))
	for i, text := range texts {
		out[i] = p.Classifier.Predict(p.Vectorizer.Transform(text))
	}
	return out, nil
}

func (p *Pipeline) Label(class int) string {
	return p.Labels.Label(class)
}

func (p *Pipeline) Flavor() string { return FlavorTFIDFLogReg }

type pipelineDocument struct {
	Flavor     string              `json:"flavor"`
	Version    int                 `json:"version"`
	Family     string              `json:"model_family"`
	Labels     LabelSet            `json:"labels"`
	Vectorizer *TFIDF              `json:"vectorizer"`
	Classifier *LogisticRegression `json:"classifier"`
}

func (p *Pipeline) MarshalJSON() ([]byte, error) {
	if !p.trained() {
		return nil, errors.New("model not trained")
	}
	return json.Marshal(pipelineDocument{
		Flavor:     FlavorTFIDFLogReg,
		Version:    formatVersion,
		Family:     ModelFamily,
		Labels:     p.Labels,
		Vectorizer: p.Vectorizer,
		Classifier: p.Classifier,
	})
}

func (p *Pipeline) UnmarshalJSON(payload []byte) error {
	var doc pipelineDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}
	if doc.Flavor != FlavorTFIDFLogReg {
		return fmt.Errorf("unexpected model flavor %q", doc.Flavor)
	}
	if doc.Version != formatVersion {
		return fmt.Errorf("unsupported model format version %d", doc.Version)
	}
	if doc.Vectorizer == nil || doc.Classifier == nil {
		return errors.New("model document is incomplete")
	}
	if len(doc.Vectorizer.IDF) != len(doc.Vectorizer.Vocabulary) {
		return errors.New("vectorizer vocabulary and idf size mismatch")
	}
	if len(doc.Classifier.Coef) != len(doc.Vectorizer.IDF) {
		return errors.New("classifier and vectorizer dimensions disagree")
	}
	for term, idx := range doc.Vectorizer.Vocabulary {
		if idx < 0 || idx >= len(doc.Vectorizer.IDF) {
			return fmt.Errorf("vocabulary index out of range for %q", term)
		}
	}
	if doc.Labels.Positive == "" || doc.Labels.Negative == "" {
		return errors.New("model document has no label set")
	}
	p.Vectorizer = doc.Vectorizer
	p.Classifier = doc.Classifier
	p.Labels = doc.Labels
	return nil
}
