package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	DefaultC         = 1.0
	DefaultMaxIter   = 100
	DefaultTolerance = 1e-4
	lbfgsMemory      = 10
)

// LogisticRegression is a binary L2-penalised logistic regression over
// sparse inputs. The intercept is not penalised.
type LogisticRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	C         float64   `json:"c"`
	MaxIter   int       `json:"max_iter"`
	Tol       float64   `json:"tol"`
}

type FitReport struct {
	Iterations int
	Loss       float64
	Converged  bool
	Status     string
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: DefaultC, MaxIter: DefaultMaxIter, Tol: DefaultTolerance}
}

func (m *LogisticRegression) Fit(features []SparseVector, labels []int, nFeatures int) (FitReport, error) {
	if len(features) == 0 || len(labels) == 0 {
		return FitReport{}, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return FitReport{}, errors.New("features and labels size mismatch")
	}
	if nFeatures <= 0 {
		return FitReport{}, errors.New("feature count must be positive")
	}
	var positives int
	for _, y := range labels {
		switch y {
		case 0:
		case 1:
			positives++
		default:
			return FitReport{}, fmt.Errorf("label %d is not binary", y)
		}
	}
	if positives == 0 || positives == len(labels) {
		return FitReport{}, errors.New("training labels contain a single class")
	}
	if m.C <= 0 {
		m.C = DefaultC
	}
	if m.MaxIter <= 0 {
		m.MaxIter = DefaultMaxIter
	}
	if m.Tol <= 0 {
		m.Tol = DefaultTolerance
	}

	n := float64(len(features))
	alpha := 1 / (m.C * n)
	z := make([]float64, len(features))

	margins := func(x []float64) {
		w, b := x[:nFeatures], x[nFeatures]
		for i, f := range features {
			z[i] = f.Dot(w) + b
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			margins(x)
			loss := 0.0
			for i, y := range labels {
				loss += logLoss(z[i], y)
			}
			return loss/n + 0.5*alpha*squaredNorm(x[:nFeatures])
		},
		Grad: func(grad, x []float64) {
			margins(x)
			for j := range grad {
				grad[j] = 0
			}
			gb := 0.0
			for i, f := range features {
				d := (sigmoid(z[i]) - float64(labels[i])) / n
				for k, idx := range f.Indices {
					grad[idx] += d * f.Values[k]
				}
				gb += d
			}
			for j := 0; j < nFeatures; j++ {
				grad[j] += alpha * x[j]
			}
			grad[nFeatures] = gb
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   m.MaxIter,
		GradientThreshold: m.Tol,
	}
	result, err := optimize.Minimize(problem, make([]float64, nFeatures+1), settings, &optimize.LBFGS{Store: lbfgsMemory})
	if result == nil {
		return FitReport{}, fmt.Errorf("optimize logistic loss: %w", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FitReport{}, errors.New("optimizer produced non-finite weights")
		}
	}

	m.Coef = append([]float64(nil), result.X[:nFeatures]...)
	m.Intercept = result.X[nFeatures]

	report := FitReport{
		Iterations: result.Stats.MajorIterations,
		Loss:       result.F,
		Converged:  err == nil && result.Status != optimize.IterationLimit,
		Status:     result.Status.String(),
	}
	return report, nil
}

func (m *LogisticRegression) DecisionFunction(x SparseVector) float64 {
	return x.Dot(m.Coef) + m.Intercept
}

func (m *LogisticRegression) PredictProba(x SparseVector) float64 {
	return sigmoid(m.DecisionFunction(x))
}

func (m *LogisticRegression) Predict(x SparseVector) int {
	if m.DecisionFunction(x) > 0 {
		return 1
	}
	return 0
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// logLoss is log(1+exp(-m)) with m the signed margin, computed without overflow.
func logLoss(z float64, y int) float64 {
	margin := z
	if y == 0 {
		margin = -z
	}
	if margin > 0 {
		return math.Log1p(math.Exp(-margin))
	}
	return -margin + math.Log1p(math.Exp(margin))
}

func squaredNorm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return sum
}
