package playground

import (
	"context"
	"fmt"
	"io"

	"github.com/tsawler/go-mlplayground/logging"
	"github.com/tsawler/go-mlplayground/loop"
	"github.com/tsawler/go-mlplayground/training"
)

// RunHeadless runs every widget to completion on a virtual clock and writes progress and
// summaries to w. Regression runs to its iteration budget; k-means and Q-learning run for
// ticks ticks each.
func RunHeadless(ctx context.Context, w io.Writer, cfg Config, ticks int, logger *logging.Logger) error {
	if ticks < 1 {
		return fmt.Errorf("headless run needs at least one tick, got %d", ticks)
	}
	sched := loop.NewManualScheduler()
	p, err := New(cfg, Options{Scheduler: sched, Logger: logger})
	if err != nil {
		return err
	}
	defer p.Close()

	// Regression
	bar := training.NewProgressBar(w, "Regression", cfg.Regression.Iterations)
	err = drive(ctx, sched, p.regDrv, 0, func() {
		s := p.regDrv.Snapshot()
		metrics := map[string]float64{}
		if n := len(s.Loss); n > 0 {
			metrics["loss"] = s.Loss[n-1].Loss
			metrics["lr"] = s.LearningRates[n-1]
		}
		bar.Update(s.Iteration, metrics)
	})
	bar.Finish()
	if err != nil {
		return err
	}
	reg := p.regDrv.Snapshot()
	summary := map[string]float64{"weight": reg.Params.Weight, "bias": reg.Params.Bias}
	if reg.Metrics != nil {
		for k, v := range reg.Metrics.Map() {
			summary[k] = v
		}
	}
	training.PrintSummary(w, "Regression", p.regDrv.Ticks(), summary)

	// K-means
	bar = training.NewProgressBar(w, "K-Means", ticks)
	err = drive(ctx, sched, p.kmDrv, ticks, func() {
		s := p.kmDrv.Snapshot()
		bar.Update(s.Iteration, map[string]float64{"inertia": s.Inertia[len(s.Inertia)-1]})
	})
	bar.Finish()
	if err != nil {
		return err
	}
	km := p.kmDrv.Snapshot()
	training.PrintSummary(w, "K-Means", p.kmDrv.Ticks(), map[string]float64{
		"k":       float64(km.K),
		"inertia": km.Inertia[len(km.Inertia)-1],
	})

	// Q-learning
	bar = training.NewProgressBar(w, "Q-Learning", ticks)
	err = drive(ctx, sched, p.qlDrv, ticks, func() {
		s := p.qlDrv.Snapshot()
		bar.Update(s.Episodes, map[string]float64{"total_reward": s.TotalReward})
	})
	bar.Finish()
	if err != nil {
		return err
	}
	ql := p.qlDrv.Snapshot()
	training.PrintSummary(w, "Q-Learning", p.qlDrv.Ticks(), map[string]float64{
		"total_reward": ql.TotalReward,
		"position":     float64(ql.Position),
	})
	return nil
}

// drive starts d and runs queued ticks until it stops on its own or has run limit ticks.
// A limit of zero means no limit. Only d may have work queued on sched.
func drive(ctx context.Context, sched *loop.ManualScheduler, d controller, limit int, onTick func()) error {
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", d.Name(), err)
	}
	defer d.Pause()

	for d.State() == loop.Running && (limit == 0 || d.Ticks() < limit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := d.Ticks()
		if !sched.RunNext() {
			break
		}
		if d.Ticks() > before {
			onTick()
		}
	}
	return nil
}
