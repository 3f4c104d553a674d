// Package regression fits y = w·x + b to a point set with full-batch gradient descent,
// one update per driver tick.
package regression

import (
	"encoding/json"

	"github.com/tsawler/go-mlplayground/dataset"
)

// Params are the model parameters
type Params struct {
	Weight float64 `json:"weight"`
	Bias   float64 `json:"bias"`
}

// LossEntry is one point of the loss curve
type LossEntry struct {
	Iteration int     `json:"iteration"`
	Loss      float64 `json:"loss"`
}

type paramsJSON struct {
	Weight dataset.Float `json:"weight"`
	Bias   dataset.Float `json:"bias"`
}

// MarshalJSON implements json.Marshaler; a diverged run encodes as "NaN" or "Infinity"
func (p Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramsJSON{Weight: dataset.Float(p.Weight), Bias: dataset.Float(p.Bias)})
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Params) UnmarshalJSON(b []byte) error {
	var aux paramsJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.Weight, p.Bias = float64(aux.Weight), float64(aux.Bias)
	return nil
}

type lossEntryJSON struct {
	Iteration int           `json:"iteration"`
	Loss      dataset.Float `json:"loss"`
}

// MarshalJSON implements json.Marshaler
func (e LossEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(lossEntryJSON{Iteration: e.Iteration, Loss: dataset.Float(e.Loss)})
}

// UnmarshalJSON implements json.Unmarshaler
func (e *LossEntry) UnmarshalJSON(b []byte) error {
	var aux lossEntryJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Iteration, e.Loss = aux.Iteration, float64(aux.Loss)
	return nil
}

// StepResult is the outcome of a single gradient-descent update
type StepResult struct {
	Params      Params          `json:"params"`
	Entry       LossEntry       `json:"entry"`
	Predictions []dataset.Point `json:"predictions"`
}

// Predict evaluates the line at x
func Predict(p Params, x float64) float64 {
	return p.Weight*x + p.Bias
}

// Loss returns the halved mean squared error Σ(ŷ−y)² / 2n. An empty point set yields NaN.
func Loss(p Params, pts []dataset.Point) float64 {
	sum := 0.0
	for _, pt := range pts {
		d := Predict(p, pt.X) - pt.Y
		sum += d * d
	}
	return sum / (2 * float64(len(pts)))
}

// Gradient returns the gradient of Loss with respect to weight and bias
func Gradient(p Params, pts []dataset.Point) (dw, db float64) {
	for _, pt := range pts {
		d := Predict(p, pt.X) - pt.Y
		dw += d * pt.X
		db += d
	}
	n := float64(len(pts))
	return dw / n, db / n
}

// Predictions evaluates the line at every x of pts
func Predictions(p Params, pts []dataset.Point) []dataset.Point {
	out := make([]dataset.Point, len(pts))
	for i, pt := range pts {
		out[i] = dataset.Point{X: pt.X, Y: Predict(p, pt.X)}
	}
	return out
}

// Step applies one gradient-descent update with learning rate lr and reports the loss at the
// updated parameters. It does not modify pts.
func Step(p Params, pts []dataset.Point, lr float64, iteration int) StepResult {
	dw, db := Gradient(p, pts)
	next := Params{
		Weight: p.Weight - lr*dw,
		Bias:   p.Bias - lr*db,
	}
	return StepResult{
		Params:      next,
		Entry:       LossEntry{Iteration: iteration, Loss: Loss(next, pts)},
		Predictions: Predictions(next, pts),
	}
}
