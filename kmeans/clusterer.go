package kmeans

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/tsawler/go-mlplayground/dataset"
)

const (
	MinClusters = 2
	MaxClusters = 5

	// DefaultInterval is the delay between ticks
	DefaultInterval = 500 * time.Millisecond
)

// ErrClusterCountRange indicates K outside [MinClusters, MaxClusters]
var ErrClusterCountRange = errors.New("kmeans: cluster count out of range")

// Config contains the clusterer tunables
type Config struct {
	K      int     `json:"k"`      // Number of clusters
	Extent float64 `json:"extent"` // Centroids start uniformly in [0, Extent) on both axes
}

// DefaultConfig returns three clusters over a 100×100 square
func DefaultConfig() Config {
	return Config{K: 3, Extent: dataset.DefaultCloudExtent}
}

// Validate checks the tunables
func (c Config) Validate() error {
	if c.K < MinClusters || c.K > MaxClusters {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrClusterCountRange, c.K, MinClusters, MaxClusters)
	}
	if c.Extent <= 0 {
		return fmt.Errorf("kmeans: extent must be positive, got %g", c.Extent)
	}
	return nil
}

// Snapshot is the published state of a Clusterer
type Snapshot struct {
	K           int             `json:"k"`
	Iteration   int             `json:"iteration"`
	Centroids   []dataset.Point `json:"centroids"`
	Assignments []int           `json:"assignments"`
	Inertia     dataset.Series  `json:"inertia"` // One entry per tick since reset
	Data        []dataset.Point `json:"data"`
}

// Clusterer is the state container of the k-means demo. It is not safe for concurrent use.
type Clusterer struct {
	cfg         Config
	rng         *rand.Rand
	data        []dataset.Point
	centroids   []dataset.Point
	assignments []int
	iteration   int
	inertia     []float64
}

// NewClusterer creates a clusterer over data with centroids drawn from rng
func NewClusterer(data []dataset.Point, cfg Config, rng *rand.Rand) (*Clusterer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("kmeans: random source is required")
	}
	c := &Clusterer{cfg: cfg, rng: rng, data: dataset.ClonePoints(data)}
	c.initialize()
	return c, nil
}

// initialize draws fresh centroids and assigns every point to cluster 0
func (c *Clusterer) initialize() {
	c.centroids = make([]dataset.Point, c.cfg.K)
	for i := range c.centroids {
		c.centroids[i] = dataset.Point{X: c.rng.Float64() * c.cfg.Extent, Y: c.rng.Float64() * c.cfg.Extent}
	}
	c.assignments = make([]int, len(c.data))
}

// Step runs one assignment and update pass. It never reports exhaustion.
func (c *Clusterer) Step() bool {
	c.assignments, c.centroids = Step(c.data, c.centroids)
	c.iteration++
	c.inertia = append(c.inertia, Inertia(c.data, c.assignments, c.centroids))
	return true
}

// Reset re-initialises the centroids and clears the run history
func (c *Clusterer) Reset() {
	c.iteration = 0
	c.inertia = nil
	c.initialize()
}

// SetData replaces the dataset wholesale and resets
func (c *Clusterer) SetData(data []dataset.Point) {
	c.data = dataset.ClonePoints(data)
	c.Reset()
}

// SetK changes the number of clusters and resets
func (c *Clusterer) SetK(k int) error {
	cfg := c.cfg
	cfg.K = k
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.Reset()
	return nil
}

// Config returns the current tunables
func (c *Clusterer) Config() Config {
	return c.cfg
}

// Snapshot returns an independent copy of the clusterer state
func (c *Clusterer) Snapshot() Snapshot {
	return Snapshot{
		K:           c.cfg.K,
		Iteration:   c.iteration,
		Centroids:   dataset.ClonePoints(c.centroids),
		Assignments: append([]int(nil), c.assignments...),
		Inertia:     append(dataset.Series(nil), c.inertia...),
		Data:        dataset.ClonePoints(c.data),
	}
}

// Validate checks that a snapshot can be restored
func (s Snapshot) Validate() error {
	if s.K < MinClusters || s.K > MaxClusters {
		return fmt.Errorf("invalid kmeans snapshot: %w: %d not in [%d, %d]", ErrClusterCountRange, s.K, MinClusters, MaxClusters)
	}
	if len(s.Centroids) != s.K {
		return fmt.Errorf("invalid kmeans snapshot: %d centroids for k=%d", len(s.Centroids), s.K)
	}
	if len(s.Assignments) != len(s.Data) {
		return fmt.Errorf("invalid kmeans snapshot: %d assignments for %d points", len(s.Assignments), len(s.Data))
	}
	for i, a := range s.Assignments {
		if a < 0 || a >= s.K {
			return fmt.Errorf("invalid kmeans snapshot: point %d assigned to cluster %d", i, a)
		}
	}
	if s.Iteration < 0 {
		return fmt.Errorf("invalid kmeans snapshot: negative iteration %d", s.Iteration)
	}
	if len(s.Inertia) != s.Iteration {
		return fmt.Errorf("invalid kmeans snapshot: %d inertia entries for %d iterations", len(s.Inertia), s.Iteration)
	}
	return nil
}

// Restore loads a previously captured snapshot
func (c *Clusterer) Restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	cfg := c.cfg
	cfg.K = s.K
	c.cfg = cfg
	c.data = dataset.ClonePoints(s.Data)
	c.centroids = dataset.ClonePoints(s.Centroids)
	c.assignments = append([]int(nil), s.Assignments...)
	c.iteration = s.Iteration
	c.inertia = append([]float64(nil), s.Inertia...)
	return nil
}
