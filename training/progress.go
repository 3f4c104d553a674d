package training

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ProgressBar provides PyTorch-style progress output for a simulation run.
// A total of zero means the run is open-ended: the bar shows the tick count only.
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	metrics     map[string]float64
	now         func() time.Time
}

// NewProgressBar creates a new progress bar writing to out
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	pb := &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		width:       40, // Character width of progress bar
		showRate:    true,
		showETA:     true,
		metrics:     make(map[string]float64),
		now:         time.Now,
	}
	pb.startTime = pb.now()
	return pb
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = make(map[string]float64, len(metrics))
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// UpdateMetrics updates metrics without advancing progress
func (pb *ProgressBar) UpdateMetrics(metrics map[string]float64) {
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	if pb.total > 0 {
		pb.current = pb.total
	}
	pb.render()
	fmt.Fprintln(pb.out)
}

// Line returns the current progress line without the leading carriage return
func (pb *ProgressBar) Line() string {
	elapsed := pb.now().Sub(pb.startTime)

	var line string
	if pb.total > 0 {
		percentage := float64(pb.current) / float64(pb.total)
		if percentage > 1.0 {
			percentage = 1.0
		}
		filled := int(percentage * float64(pb.width))
		bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

		line = fmt.Sprintf("%s: %3.0f%%|%s| %d/%d", pb.description, percentage*100, bar, pb.current, pb.total)

		var eta time.Duration
		if pb.current > 0 && percentage > 0 {
			eta = time.Duration(float64(elapsed)/percentage) - elapsed
		}
		if pb.showETA && eta > 0 {
			line += fmt.Sprintf(" [%s<%s", formatDuration(elapsed), formatDuration(eta))
		} else {
			line += fmt.Sprintf(" [%s<00:00", formatDuration(elapsed))
		}
	} else {
		line = fmt.Sprintf("%s: %d ticks [%s", pb.description, pb.current, formatDuration(elapsed))
	}

	if pb.showRate && pb.current > 0 && elapsed > 0 {
		line += fmt.Sprintf(", %.2ftick/s", float64(pb.current)/elapsed.Seconds())
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		line += fmt.Sprintf(", %s=%.4f", key, pb.metrics[key])
	}

	return line + "]"
}

// render draws the progress bar, overwriting the previous line
func (pb *ProgressBar) render() {
	fmt.Fprint(pb.out, "\r"+pb.Line())
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// PrintSummary prints a one-block summary of a finished run
func PrintSummary(out io.Writer, name string, ticks int, metrics map[string]float64) {
	fmt.Fprintf(out, "%s Summary:\n", name)
	fmt.Fprintf(out, "  Ticks: %d\n", ticks)

	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-14s %.4f\n", k+":", metrics[k])
	}
	fmt.Fprintln(out)
}
