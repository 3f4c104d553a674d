package dataset

import "math/rand"

const (
	// DefaultLinearSamples is the size of the generated regression sample
	DefaultLinearSamples = 50
	// DefaultCloudSamples is the size of the generated clustering sample
	DefaultCloudSamples = 100
	// DefaultCloudExtent bounds the generated clustering sample on both axes
	DefaultCloudExtent = 100.0
)

// LinearSample generates n points scattered around y = 2x + 1 with x = i/5 and uniform
// noise in [-1, 1)
func LinearSample(rng *rand.Rand, n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		x := float64(i) / 5
		pts[i] = Point{X: x, Y: 2*x + 1 + (rng.Float64()-0.5)*2}
	}
	return pts
}

// UniformCloud generates n points uniformly distributed in [0, extent) on both axes
func UniformCloud(rng *rand.Rand, n int, extent float64) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{X: rng.Float64() * extent, Y: rng.Float64() * extent}
	}
	return pts
}
