package regression

import (
	"errors"
	"fmt"

	"github.com/tsawler/go-mlplayground/dataset"
	"github.com/tsawler/go-mlplayground/training"
)

// Slider bounds for the two tunables
const (
	MinLearningRate = 0.001
	MaxLearningRate = 0.1
	MinIterations   = 10
	MaxIterations   = 500
)

var (
	// ErrLearningRateRange indicates a learning rate outside [MinLearningRate, MaxLearningRate]
	ErrLearningRateRange = errors.New("regression: learning rate out of range")
	// ErrIterationsRange indicates an iteration budget outside [MinIterations, MaxIterations]
	ErrIterationsRange = errors.New("regression: iterations out of range")
)

// Config contains the trainer tunables
type Config struct {
	LearningRate float64              `json:"learning_rate"`
	Iterations   int                  `json:"iterations"`
	Schedule     training.LRScheduler `json:"-"` // Optional; nil keeps the rate constant
}

// DefaultConfig returns learning rate 0.01 and a budget of 100 iterations
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.01,
		Iterations:   100,
	}
}

// Validate checks the tunables against their bounds
func (c Config) Validate() error {
	if c.LearningRate < MinLearningRate || c.LearningRate > MaxLearningRate {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrLearningRateRange, c.LearningRate, MinLearningRate, MaxLearningRate)
	}
	if c.Iterations < MinIterations || c.Iterations > MaxIterations {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrIterationsRange, c.Iterations, MinIterations, MaxIterations)
	}
	return nil
}

// Snapshot is the published state of a Trainer
type Snapshot struct {
	Params        Params                      `json:"params"`
	Iteration     int                         `json:"iteration"`  // Completed updates since reset
	Iterations    int                         `json:"iterations"` // Budget
	LearningRate  float64                     `json:"learning_rate"`
	Schedule      string                      `json:"schedule"`
	Loss          []LossEntry                 `json:"loss"`
	LearningRates []float64                   `json:"learning_rates"`
	Predictions   []dataset.Point             `json:"predictions"`
	Data          []dataset.Point             `json:"data"`
	Metrics       *training.RegressionMetrics `json:"metrics,omitempty"`
}

// Trainer is the state container of the linear-regression demo. It is not safe for
// concurrent use; the driver serialises access.
type Trainer struct {
	cfg         Config
	data        []dataset.Point
	params      Params
	iteration   int
	loss        []LossEntry
	rates       []float64
	predictions []dataset.Point
}

// NewTrainer creates a trainer over data
func NewTrainer(data []dataset.Point, cfg Config) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{cfg: cfg, data: dataset.ClonePoints(data)}, nil
}

// Step performs one gradient-descent update. It returns false once the budget is spent.
func (t *Trainer) Step() bool {
	if t.Exhausted() {
		return false
	}

	lr := t.currentRate()
	res := Step(t.params, t.data, lr, t.iteration)

	t.params = res.Params
	t.loss = append(t.loss, res.Entry)
	t.rates = append(t.rates, lr)
	t.predictions = res.Predictions
	if obs, ok := t.cfg.Schedule.(training.MetricObserver); ok {
		obs.Observe(res.Entry.Loss)
	}
	t.iteration++
	return true
}

// currentRate applies the schedule and keeps the result inside the slider bounds
func (t *Trainer) currentRate() float64 {
	if t.cfg.Schedule == nil {
		return t.cfg.LearningRate
	}
	lr := t.cfg.Schedule.GetLR(t.iteration, t.cfg.LearningRate)
	if lr < MinLearningRate {
		lr = MinLearningRate
	}
	if lr > MaxLearningRate {
		lr = MaxLearningRate
	}
	return lr
}

// Exhausted reports whether the iteration budget has been used
func (t *Trainer) Exhausted() bool {
	return t.iteration >= t.cfg.Iterations
}

// Reset zeroes the parameters and clears the run history. Data is kept.
func (t *Trainer) Reset() {
	t.params = Params{}
	t.iteration = 0
	t.loss = nil
	t.rates = nil
	t.predictions = nil
	if r, ok := t.cfg.Schedule.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// SetData replaces the dataset wholesale and resets the model
func (t *Trainer) SetData(data []dataset.Point) {
	t.data = dataset.ClonePoints(data)
	t.Reset()
}

// SetLearningRate changes the base learning rate for subsequent steps
func (t *Trainer) SetLearningRate(lr float64) error {
	cfg := t.cfg
	cfg.LearningRate = lr
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.cfg = cfg
	return nil
}

// SetIterations changes the budget. Lowering it below the current iteration exhausts the run.
func (t *Trainer) SetIterations(n int) error {
	cfg := t.cfg
	cfg.Iterations = n
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.cfg = cfg
	return nil
}

// SetSchedule swaps the learning rate schedule; nil restores a constant rate
func (t *Trainer) SetSchedule(s training.LRScheduler) {
	t.cfg.Schedule = s
}

// Config returns the current tunables
func (t *Trainer) Config() Config {
	return t.cfg
}

// Snapshot returns an independent copy of the trainer state
func (t *Trainer) Snapshot() Snapshot {
	s := Snapshot{
		Params:        t.params,
		Iteration:     t.iteration,
		Iterations:    t.cfg.Iterations,
		LearningRate:  t.cfg.LearningRate,
		Schedule:      training.ConstantLR{}.GetName(),
		Loss:          append([]LossEntry(nil), t.loss...),
		LearningRates: append([]float64(nil), t.rates...),
		Predictions:   dataset.ClonePoints(t.predictions),
		Data:          dataset.ClonePoints(t.data),
	}
	if t.cfg.Schedule != nil {
		s.Schedule = t.cfg.Schedule.GetName()
	}
	if len(t.predictions) > 0 {
		pred := make([]float64, len(t.predictions))
		truth := make([]float64, len(t.data))
		for i := range t.predictions {
			pred[i] = t.predictions[i].Y
		}
		for i := range t.data {
			truth[i] = t.data[i].Y
		}
		m := training.CalculateRegressionMetrics(pred, truth)
		s.Metrics = &m
	}
	return s
}

// Validate checks that the tunables are in bounds and the histories match the iteration count
func (s Snapshot) Validate() error {
	cfg := Config{LearningRate: s.LearningRate, Iterations: s.Iterations}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid regression snapshot: %w", err)
	}
	if s.Iteration < 0 {
		return fmt.Errorf("invalid regression snapshot: negative iteration %d", s.Iteration)
	}
	if len(s.Loss) != s.Iteration {
		return fmt.Errorf("invalid regression snapshot: %d loss entries for %d iterations", len(s.Loss), s.Iteration)
	}
	if len(s.LearningRates) != s.Iteration {
		return fmt.Errorf("invalid regression snapshot: %d learning rates for %d iterations", len(s.LearningRates), s.Iteration)
	}
	return nil
}

// Restore loads a previously captured snapshot. The schedule is left untouched.
func (t *Trainer) Restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	cfg := t.cfg
	cfg.LearningRate = s.LearningRate
	cfg.Iterations = s.Iterations
	t.cfg = cfg
	t.data = dataset.ClonePoints(s.Data)
	t.params = s.Params
	t.iteration = s.Iteration
	t.loss = append([]LossEntry(nil), s.Loss...)
	t.rates = append([]float64(nil), s.LearningRates...)
	t.predictions = nil
	if s.Iteration > 0 {
		t.predictions = Predictions(t.params, t.data)
	}
	return nil
}
