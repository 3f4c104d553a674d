package training

import (
	"fmt"
	"math"
	"strings"
)

// LRScheduler defines the interface for learning rate scheduling strategies
type LRScheduler interface {
	// GetLR returns the learning rate for the given iteration
	GetLR(iteration int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// MetricObserver is implemented by schedulers that react to the loss after each iteration
type MetricObserver interface {
	Observe(metric float64)
}

// ConstantLR keeps the base learning rate
type ConstantLR struct{}

func (ConstantLR) GetLR(iteration int, baseLR float64) float64 {
	return baseLR
}

func (ConstantLR) GetName() string {
	return "ConstantLR"
}

// StepLRScheduler reduces learning rate by a factor every StepSize iterations
type StepLRScheduler struct {
	StepSize int     // Iterations between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLRScheduler creates a step learning rate scheduler
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30 // Default: reduce every 30 iterations
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1 // Default: reduce by 10x
	}
	return &StepLRScheduler{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLRScheduler) GetLR(iteration int, baseLR float64) float64 {
	times := iteration / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// ExponentialLRScheduler decays learning rate exponentially
type ExponentialLRScheduler struct {
	Gamma float64 // Multiplicative factor of LR decay per iteration
}

// NewExponentialLRScheduler creates an exponential learning rate scheduler
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95 // Default: 5% reduction per iteration
	}
	return &ExponentialLRScheduler{
		Gamma: gamma,
	}
}

func (s *ExponentialLRScheduler) GetLR(iteration int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(iteration))
}

func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLRScheduler implements cosine annealing schedule
type CosineAnnealingLRScheduler struct {
	TMax   int     // Iterations over which the rate anneals
	EtaMin float64 // Minimum learning rate
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{
		TMax:   tMax,
		EtaMin: etaMin,
	}
}

func (s *CosineAnnealingLRScheduler) GetLR(iteration int, baseLR float64) float64 {
	if iteration >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(iteration)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}

// ReduceLROnPlateauScheduler reduces LR when the loss has stopped improving
type ReduceLROnPlateauScheduler struct {
	Factor    float64 // Factor by which the learning rate will be reduced
	Patience  int     // Iterations with no improvement after which LR will be reduced
	Threshold float64 // Threshold for measuring the new optimum

	bestMetric  float64
	badSteps    int
	reductions  int
	initialized bool
}

// NewReduceLROnPlateauScheduler creates a plateau-based scheduler
func NewReduceLROnPlateauScheduler(factor float64, patience int, threshold float64) *ReduceLROnPlateauScheduler {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	return &ReduceLROnPlateauScheduler{
		Factor:    factor,
		Patience:  patience,
		Threshold: threshold,
	}
}

// Observe records the latest loss
func (s *ReduceLROnPlateauScheduler) Observe(metric float64) {
	if !s.initialized {
		s.bestMetric = metric
		s.initialized = true
		return
	}
	if metric < s.bestMetric-s.Threshold {
		s.bestMetric = metric
		s.badSteps = 0
		return
	}
	s.badSteps++
	if s.badSteps >= s.Patience {
		s.reductions++
		s.badSteps = 0
	}
}

// Reset forgets all observed metrics
func (s *ReduceLROnPlateauScheduler) Reset() {
	s.bestMetric = 0
	s.badSteps = 0
	s.reductions = 0
	s.initialized = false
}

func (s *ReduceLROnPlateauScheduler) GetLR(iteration int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Factor, float64(s.reductions))
}

func (s *ReduceLROnPlateauScheduler) GetName() string {
	return "ReduceLROnPlateau"
}

// ScheduleConfig selects and parameterises a scheduler by name
type ScheduleConfig struct {
	Name      string  `json:"name"`      // "constant", "step", "exponential", "cosine", "plateau"
	StepSize  int     `json:"step_size"` // step
	Gamma     float64 `json:"gamma"`     // step, exponential
	TMax      int     `json:"t_max"`     // cosine
	EtaMin    float64 `json:"eta_min"`   // cosine
	Factor    float64 `json:"factor"`    // plateau
	Patience  int     `json:"patience"`  // plateau
	Threshold float64 `json:"threshold"` // plateau
}

// NewScheduler builds the scheduler described by cfg. Unset parameters take the
// constructor defaults.
func NewScheduler(cfg ScheduleConfig) (LRScheduler, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "constant", "none":
		return ConstantLR{}, nil
	case "step":
		return NewStepLRScheduler(cfg.StepSize, cfg.Gamma), nil
	case "exponential", "exp":
		return NewExponentialLRScheduler(cfg.Gamma), nil
	case "cosine":
		return NewCosineAnnealingLRScheduler(cfg.TMax, cfg.EtaMin), nil
	case "plateau":
		threshold := cfg.Threshold
		if threshold == 0 {
			threshold = 1e-4
		}
		return NewReduceLROnPlateauScheduler(cfg.Factor, cfg.Patience, threshold), nil
	default:
		return nil, fmt.Errorf("unsupported learning rate schedule: %q", cfg.Name)
	}
}
