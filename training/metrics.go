package training

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tsawler/go-mlplayground/dataset"
)

// MetricType represents the regression evaluation metrics reported by the trainers
type MetricType int

const (
	MAE  MetricType = iota // Mean Absolute Error
	MSE                    // Mean Squared Error
	RMSE                   // Root Mean Squared Error
	R2                     // R-squared
	NMAE                   // Normalized Mean Absolute Error
)

func (mt MetricType) String() string {
	switch mt {
	case MAE:
		return "MAE"
	case MSE:
		return "MSE"
	case RMSE:
		return "RMSE"
	case R2:
		return "R2"
	case NMAE:
		return "NMAE"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// RegressionMetrics holds regression evaluation metrics
type RegressionMetrics struct {
	MAE  float64 // Mean Absolute Error
	MSE  float64 // Mean Squared Error
	RMSE float64 // Root Mean Squared Error
	R2   float64 // R-squared
	NMAE float64 // Normalized Mean Absolute Error
}

type regressionMetricsJSON struct {
	MAE  dataset.Float `json:"mae"`
	MSE  dataset.Float `json:"mse"`
	RMSE dataset.Float `json:"rmse"`
	R2   dataset.Float `json:"r2"`
	NMAE dataset.Float `json:"nmae"`
}

// MarshalJSON keeps NaN metrics of an empty or diverged run encodable
func (m RegressionMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(regressionMetricsJSON{
		MAE:  dataset.Float(m.MAE),
		MSE:  dataset.Float(m.MSE),
		RMSE: dataset.Float(m.RMSE),
		R2:   dataset.Float(m.R2),
		NMAE: dataset.Float(m.NMAE),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *RegressionMetrics) UnmarshalJSON(b []byte) error {
	var aux regressionMetricsJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*m = RegressionMetrics{
		MAE:  float64(aux.MAE),
		MSE:  float64(aux.MSE),
		RMSE: float64(aux.RMSE),
		R2:   float64(aux.R2),
		NMAE: float64(aux.NMAE),
	}
	return nil
}

// Get returns a single metric by type
func (m RegressionMetrics) Get(mt MetricType) float64 {
	switch mt {
	case MAE:
		return m.MAE
	case MSE:
		return m.MSE
	case RMSE:
		return m.RMSE
	case R2:
		return m.R2
	case NMAE:
		return m.NMAE
	default:
		return math.NaN()
	}
}

// Map returns the metrics keyed by lowercase name, the shape the progress bar expects
func (m RegressionMetrics) Map() map[string]float64 {
	return map[string]float64{
		"mae":  m.MAE,
		"mse":  m.MSE,
		"rmse": m.RMSE,
		"r2":   m.R2,
	}
}

// CalculateRegressionMetrics computes regression metrics over the shorter of the two slices.
// Empty input yields NaN everywhere, mirroring how the loss behaves on an empty dataset.
func CalculateRegressionMetrics(predictions, trueValues []float64) RegressionMetrics {
	n := len(predictions)
	if len(trueValues) < n {
		n = len(trueValues)
	}
	if n == 0 {
		nan := math.NaN()
		return RegressionMetrics{MAE: nan, MSE: nan, RMSE: nan, R2: nan, NMAE: nan}
	}

	meanTrue := 0.0
	for i := 0; i < n; i++ {
		meanTrue += trueValues[i]
	}
	meanTrue /= float64(n)

	sumAbsErr := 0.0
	sumSqErr := 0.0
	sumSqTotal := 0.0
	minTrue := math.Inf(1)
	maxTrue := math.Inf(-1)

	for i := 0; i < n; i++ {
		pred := predictions[i]
		truth := trueValues[i]

		sumAbsErr += math.Abs(pred - truth)
		sumSqErr += (pred - truth) * (pred - truth)
		sumSqTotal += (truth - meanTrue) * (truth - meanTrue)

		if truth < minTrue {
			minTrue = truth
		}
		if truth > maxTrue {
			maxTrue = truth
		}
	}

	mae := sumAbsErr / float64(n)
	mse := sumSqErr / float64(n)

	r2 := 0.0
	if sumSqTotal > 0 {
		r2 = 1.0 - (sumSqErr / sumSqTotal)
	}

	// Normalized MAE (scale by range)
	nmae := 0.0
	if maxTrue > minTrue {
		nmae = mae / (maxTrue - minTrue)
	}

	return RegressionMetrics{
		MAE:  mae,
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		R2:   r2,
		NMAE: nmae,
	}
}
