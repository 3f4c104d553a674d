// Package kmeans clusters a point set with Lloyd's algorithm, one assignment and update
// pass per driver tick. There is no convergence check: a running clusterer keeps ticking
// until it is paused.
package kmeans

import (
	"math"

	"github.com/tsawler/go-mlplayground/dataset"
)

// Distance is the Euclidean distance between a and b
func Distance(a, b dataset.Point) float64 {
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y))
}

// Assign maps every point to its nearest centroid. Comparison is strict, so ties go to the
// lowest centroid index; with no centroids every point is assigned to 0.
func Assign(pts, centroids []dataset.Point) []int {
	out := make([]int, len(pts))
	for i, p := range pts {
		best := math.Inf(1)
		cluster := 0
		for j, c := range centroids {
			if d := Distance(p, c); d < best {
				best = d
				cluster = j
			}
		}
		out[i] = cluster
	}
	return out
}

// Update moves every centroid to the mean of its assigned points. A centroid with no
// points keeps its position.
func Update(pts []dataset.Point, assignments []int, centroids []dataset.Point) []dataset.Point {
	sums := make([]dataset.Point, len(centroids))
	counts := make([]int, len(centroids))
	for i, p := range pts {
		if i >= len(assignments) {
			break
		}
		c := assignments[i]
		if c < 0 || c >= len(centroids) {
			continue
		}
		sums[c].X += p.X
		sums[c].Y += p.Y
		counts[c]++
	}

	out := make([]dataset.Point, len(centroids))
	for j := range centroids {
		if counts[j] == 0 {
			out[j] = centroids[j]
			continue
		}
		n := float64(counts[j])
		out[j] = dataset.Point{X: sums[j].X / n, Y: sums[j].Y / n}
	}
	return out
}

// Step runs one assignment pass followed by one update pass
func Step(pts, centroids []dataset.Point) ([]int, []dataset.Point) {
	assignments := Assign(pts, centroids)
	return assignments, Update(pts, assignments, centroids)
}

// Inertia is the sum of squared distances from every point to its assigned centroid
func Inertia(pts []dataset.Point, assignments []int, centroids []dataset.Point) float64 {
	sum := 0.0
	for i, p := range pts {
		if i >= len(assignments) {
			break
		}
		c := assignments[i]
		if c < 0 || c >= len(centroids) {
			continue
		}
		d := Distance(p, centroids[c])
		sum += d * d
	}
	return sum
}
