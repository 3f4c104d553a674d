// Package plotting turns widget snapshots into the universal plot payload understood by the
// sidecar plotting service, and ships them there.
package plotting

import (
	"fmt"
	"sort"
	"time"

	"github.com/tsawler/go-mlplayground/dataset"
	"github.com/tsawler/go-mlplayground/kmeans"
	"github.com/tsawler/go-mlplayground/qlearn"
	"github.com/tsawler/go-mlplayground/regression"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	// Training plots
	TrainingCurves       PlotType = "training_curves"
	LearningRateSchedule PlotType = "learning_rate_schedule"

	// Model plots
	RegressionScatter PlotType = "regression_scatter"
	ClusterScatter    PlotType = "cluster_scatter"
	QValueHeatmap     PlotType = "q_value_heatmap"
	RewardCurve       PlotType = "reward_curve"
)

// PlotData represents the universal JSON format for the sidecar plotting service
type PlotData struct {
	// Metadata
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`

	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "scatter", "heatmap", "bar"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point. Numeric coordinates are dataset.Float so that
// a diverged run still encodes.
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`
	Label string      `json:"label,omitempty"`
	Color string      `json:"color,omitempty"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel    string                 `json:"x_axis_label"`
	YAxisLabel    string                 `json:"y_axis_label"`
	ZAxisLabel    string                 `json:"z_axis_label,omitempty"`
	XAxisScale    string                 `json:"x_axis_scale"` // "linear", "log"
	YAxisScale    string                 `json:"y_axis_scale"`
	ShowLegend    bool                   `json:"show_legend"`
	ShowGrid      bool                   `json:"show_grid"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Interactive   bool                   `json:"interactive"`
	CustomOptions map[string]interface{} `json:"custom_options,omitempty"`
}

// clusterColors cycles for k-means clusters
var clusterColors = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4"}

func defaultConfig(xLabel, yLabel string) PlotConfig {
	return PlotConfig{
		XAxisLabel:  xLabel,
		YAxisLabel:  yLabel,
		XAxisScale:  "linear",
		YAxisScale:  "linear",
		ShowLegend:  true,
		ShowGrid:    true,
		Width:       800,
		Height:      600,
		Interactive: true,
	}
}

func xy(x, y float64) DataPoint {
	return DataPoint{X: dataset.Float(x), Y: dataset.Float(y)}
}

func newPlot(kind PlotType, title, model string, cfg PlotConfig) PlotData {
	return PlotData{
		PlotType:  kind,
		Title:     title,
		Timestamp: time.Now(),
		ModelName: model,
		Config:    cfg,
	}
}

// RegressionFitPlot draws the data points and the current fitted line
func RegressionFitPlot(model string, s regression.Snapshot) PlotData {
	plot := newPlot(RegressionScatter, "Linear Regression Fit", model, defaultConfig("x", "y"))

	data := make([]DataPoint, len(s.Data))
	for i, p := range s.Data {
		data[i] = xy(p.X, p.Y)
	}
	plot.Series = append(plot.Series, SeriesData{Name: "Data", Type: "scatter", Data: data})

	if len(s.Predictions) > 0 {
		line := dataset.ClonePoints(s.Predictions)
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		fit := make([]DataPoint, len(line))
		for i, p := range line {
			fit[i] = xy(p.X, p.Y)
		}
		plot.Series = append(plot.Series, SeriesData{
			Name:  "Fit",
			Type:  "line",
			Data:  fit,
			Style: map[string]interface{}{"color": "red"},
		})
	}

	plot.Metrics = map[string]interface{}{
		"weight":    dataset.Float(s.Params.Weight),
		"bias":      dataset.Float(s.Params.Bias),
		"iteration": s.Iteration,
	}
	if s.Metrics != nil {
		for k, v := range s.Metrics.Map() {
			plot.Metrics[k] = dataset.Float(v)
		}
	}
	return plot
}

// LossCurvePlot draws the loss history
func LossCurvePlot(model string, s regression.Snapshot) PlotData {
	plot := newPlot(TrainingCurves, "Training Loss", model, defaultConfig("Iteration", "Loss"))

	data := make([]DataPoint, len(s.Loss))
	for i, e := range s.Loss {
		data[i] = DataPoint{X: e.Iteration, Y: dataset.Float(e.Loss)}
	}
	plot.Series = []SeriesData{{Name: "Loss", Type: "line", Data: data}}
	if n := len(s.Loss); n > 0 {
		plot.Metrics = map[string]interface{}{"final_loss": dataset.Float(s.Loss[n-1].Loss)}
	}
	return plot
}

// LearningRatePlot draws the learning rate used at every iteration
func LearningRatePlot(model string, s regression.Snapshot) PlotData {
	plot := newPlot(LearningRateSchedule, "Learning Rate Schedule", model, defaultConfig("Iteration", "Learning Rate"))

	data := make([]DataPoint, len(s.LearningRates))
	for i, lr := range s.LearningRates {
		data[i] = DataPoint{X: i, Y: dataset.Float(lr)}
	}
	plot.Series = []SeriesData{{Name: s.Schedule, Type: "line", Data: data}}
	return plot
}

// ClusterPlot draws every cluster in its own color with the centroids on top
func ClusterPlot(model string, s kmeans.Snapshot) PlotData {
	plot := newPlot(ClusterScatter, fmt.Sprintf("K-Means Clustering (k=%d)", s.K), model, defaultConfig("x", "y"))

	clusters := make([][]DataPoint, len(s.Centroids))
	for i, p := range s.Data {
		c := 0
		if i < len(s.Assignments) {
			c = s.Assignments[i]
		}
		if c < 0 || c >= len(clusters) {
			continue
		}
		clusters[c] = append(clusters[c], xy(p.X, p.Y))
	}

	centroids := make([]DataPoint, len(s.Centroids))
	for j, c := range s.Centroids {
		color := clusterColors[j%len(clusterColors)]
		plot.Series = append(plot.Series, SeriesData{
			Name:  fmt.Sprintf("Cluster %d", j),
			Type:  "scatter",
			Data:  append([]DataPoint{}, clusters[j]...),
			Style: map[string]interface{}{"color": color},
		})
		centroids[j] = DataPoint{
			X:     dataset.Float(c.X),
			Y:     dataset.Float(c.Y),
			Label: fmt.Sprintf("Centroid %d", j),
			Color: color,
		}
	}
	plot.Series = append(plot.Series, SeriesData{
		Name:  "Centroids",
		Type:  "scatter",
		Data:  centroids,
		Style: map[string]interface{}{"marker": "x", "size": 12},
	})

	plot.Metrics = map[string]interface{}{"iteration": s.Iteration}
	if n := len(s.Inertia); n > 0 {
		plot.Metrics["inertia"] = dataset.Float(s.Inertia[n-1])
	}
	return plot
}

// QValuePlot draws the Q-table as a cell × action heatmap
func QValuePlot(model string, s qlearn.Snapshot) PlotData {
	cfg := defaultConfig("Cell", "Action")
	cfg.ZAxisLabel = "Q"
	plot := newPlot(QValueHeatmap, "Q-Values", model, cfg)

	data := make([]DataPoint, 0, 2*len(s.QTable))
	for cell, v := range s.QTable {
		for _, a := range []qlearn.Action{qlearn.Left, qlearn.Right} {
			data = append(data, DataPoint{X: cell, Y: a.String(), Z: dataset.Float(v.Get(a))})
		}
	}
	plot.Series = []SeriesData{{Name: "Q", Type: "heatmap", Data: data}}
	plot.Metrics = map[string]interface{}{
		"position": s.Position,
		"episodes": s.Episodes,
	}
	return plot
}

// RewardCurvePlot draws the cumulative reward after every transition
func RewardCurvePlot(model string, s qlearn.Snapshot) PlotData {
	plot := newPlot(RewardCurve, "Cumulative Reward", model, defaultConfig("Episode", "Total Reward"))

	data := make([]DataPoint, len(s.Rewards))
	for i, r := range s.Rewards {
		data[i] = DataPoint{X: i + 1, Y: dataset.Float(r)}
	}
	plot.Series = []SeriesData{{Name: "Total Reward", Type: "line", Data: data}}
	plot.Metrics = map[string]interface{}{"total_reward": dataset.Float(s.TotalReward)}
	return plot
}

// RegressionPlots builds every regression plot
func RegressionPlots(model string) func(regression.Snapshot) []PlotData {
	return func(s regression.Snapshot) []PlotData {
		return []PlotData{
			RegressionFitPlot(model, s),
			LossCurvePlot(model, s),
			LearningRatePlot(model, s),
		}
	}
}

// KMeansPlots builds the cluster plot
func KMeansPlots(model string) func(kmeans.Snapshot) []PlotData {
	return func(s kmeans.Snapshot) []PlotData {
		return []PlotData{ClusterPlot(model, s)}
	}
}

// QLearningPlots builds the Q-value and reward plots
func QLearningPlots(model string) func(qlearn.Snapshot) []PlotData {
	return func(s qlearn.Snapshot) []PlotData {
		return []PlotData{QValuePlot(model, s), RewardCurvePlot(model, s)}
	}
}
