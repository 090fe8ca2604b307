package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/quantlab/riskcore/internal/domain"
)

// Calibration is an optional Platt-style rescaling applied to the raw logit
// before the sigmoid.
type Calibration struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Model is a trained logistic risk classifier, exported from the training
// pipeline as a JSON artifact. FeatureMeans are the training-population
// means; they both center the attribution and stand in for features a
// symbol is missing, so a missing feature contributes exactly zero.
type Model struct {
	Features     []string           `json:"features"`
	Coefficients []float64          `json:"coefficients"`
	Intercept    float64            `json:"intercept"`
	FeatureMeans map[string]float64 `json:"feature_means"`
	Calibration  *Calibration       `json:"calibration,omitempty"`
}

// LoadModel reads and validates a classifier artifact.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier artifact: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse classifier artifact: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the artifact's internal consistency.
func (m *Model) Validate() error {
	if len(m.Features) == 0 {
		return domain.NewInvalidConfiguration("classifier artifact has no features")
	}
	if len(m.Features) != len(m.Coefficients) {
		return domain.NewInvalidConfiguration(fmt.Sprintf(
			"classifier artifact has %d features but %d coefficients",
			len(m.Features), len(m.Coefficients)))
	}
	for _, f := range m.Features {
		if _, ok := m.FeatureMeans[f]; !ok {
			return domain.NewInvalidConfiguration("classifier artifact missing mean for feature " + f)
		}
	}
	return nil
}

// ClassifierScorer scores with the logistic model. The headline score is the
// calibrated probability; the normalized components are still computed by
// the weighted path and reported alongside, so the two views can disagree.
type ClassifierScorer struct {
	model *Model
}

func NewClassifierScorer(model *Model) *ClassifierScorer {
	return &ClassifierScorer{model: model}
}

func (s *ClassifierScorer) Name() string { return "classifier" }

func (s *ClassifierScorer) Score(in Input, _ Components) (float64, error) {
	if in.Features == nil {
		return 0, domain.NewInvalidConfiguration("classifier scoring requires a feature vector for " + in.Symbol)
	}
	logit := s.model.Intercept
	for i, name := range s.model.Features {
		logit += s.model.Coefficients[i] * s.featureValue(in, name)
	}
	if c := s.model.Calibration; c != nil {
		logit = c.Slope*logit + c.Intercept
	}
	return sigmoid(logit), nil
}

// Attribution decomposes the logit linearly around the training-population
// baseline: contribution_i = coef_i * (x_i - mean_i). The baseline is the
// probability of the mean feature vector.
func (s *ClassifierScorer) Attribution(in Input, _ Components, topN int) Attribution {
	baselineLogit := s.model.Intercept
	for i, name := range s.model.Features {
		baselineLogit += s.model.Coefficients[i] * s.model.FeatureMeans[name]
	}
	if c := s.model.Calibration; c != nil {
		baselineLogit = c.Slope*baselineLogit + c.Intercept
	}

	drivers := make([]Driver, 0, len(s.model.Features))
	for i, name := range s.model.Features {
		x := s.featureValue(in, name)
		contrib := s.model.Coefficients[i] * (x - s.model.FeatureMeans[name])
		if contrib == 0 {
			continue
		}
		drivers = append(drivers, Driver{Feature: name, Value: x, Contribution: contrib})
	}
	return splitDrivers(in.Symbol, sigmoid(baselineLogit), drivers, topN)
}

func (s *ClassifierScorer) featureValue(in Input, name string) float64 {
	if in.Features != nil {
		if v, ok := in.Features.Get(name); ok {
			return v
		}
	}
	return s.model.FeatureMeans[name]
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
