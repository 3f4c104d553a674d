package regression

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-mlplayground/dataset"
	"github.com/tsawler/go-mlplayground/logging"
	"github.com/tsawler/go-mlplayground/loop"
	"github.com/tsawler/go-mlplayground/training"
)

func sample(seed int64) []dataset.Point {
	return dataset.LinearSample(rand.New(rand.NewSource(seed)), dataset.DefaultLinearSamples)
}

func TestStepMatchesHandComputedGradient(t *testing.T) {
	pts := []dataset.Point{{X: 1, Y: 3}, {X: 2, Y: 5}}

	res := Step(Params{}, pts, 0.01, 0)

	assert.InDelta(t, 0.065, res.Params.Weight, 1e-12)
	assert.InDelta(t, 0.04, res.Params.Bias, 1e-12)
	assert.Equal(t, 0, res.Entry.Iteration)
	assert.InDelta(t, Loss(res.Params, pts), res.Entry.Loss, 1e-12)
	require.Len(t, res.Predictions, 2)
	assert.InDelta(t, 0.105, res.Predictions[0].Y, 1e-12)
	assert.Equal(t, 2.0, res.Predictions[1].X)
}

func TestLossOnPerfectFitIsZero(t *testing.T) {
	pts := []dataset.Point{{X: 0, Y: 1}, {X: 1, Y: 3}, {X: 2, Y: 5}}
	assert.Equal(t, 0.0, Loss(Params{Weight: 2, Bias: 1}, pts))

	dw, db := Gradient(Params{Weight: 2, Bias: 1}, pts)
	assert.Equal(t, 0.0, dw)
	assert.Equal(t, 0.0, db)
}

func TestStepDecreasesLossForStableRate(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		pts := sample(seed)
		p := Params{}
		before := Loss(p, pts)
		for i := 0; i < 200; i++ {
			res := Step(p, pts, 0.01, i)
			require.LessOrEqual(t, res.Entry.Loss, before, "seed %d iteration %d", seed, i)
			before = res.Entry.Loss
			p = res.Params
		}
	}
}

func TestEmptyDataPropagatesNaN(t *testing.T) {
	res := Step(Params{}, nil, 0.01, 0)
	assert.True(t, math.IsNaN(res.Entry.Loss))
	assert.True(t, math.IsNaN(res.Params.Weight))
	assert.Empty(t, res.Predictions)

	b, err := json.Marshal(res)
	require.NoError(t, err, "NaN must still encode")
	assert.Contains(t, string(b), `"loss":"NaN"`)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.LearningRate = 0.5
	assert.ErrorIs(t, cfg.Validate(), ErrLearningRateRange)

	cfg = DefaultConfig()
	cfg.Iterations = 5
	assert.ErrorIs(t, cfg.Validate(), ErrIterationsRange)

	_, err := NewTrainer(nil, Config{LearningRate: 0.0001, Iterations: 100})
	assert.ErrorIs(t, err, ErrLearningRateRange)
}

func TestTrainerRunsToBudget(t *testing.T) {
	tr, err := NewTrainer(sample(3), Config{LearningRate: 0.01, Iterations: 20})
	require.NoError(t, err)

	steps := 0
	for tr.Step() {
		steps++
	}
	assert.Equal(t, 20, steps)
	assert.True(t, tr.Exhausted())
	assert.False(t, tr.Step(), "no state change once exhausted")

	snap := tr.Snapshot()
	assert.Equal(t, 20, snap.Iteration)
	require.Len(t, snap.Loss, 20)
	assert.Equal(t, 0, snap.Loss[0].Iteration)
	assert.Equal(t, 19, snap.Loss[19].Iteration)
	assert.Len(t, snap.Predictions, 50)
	require.NotNil(t, snap.Metrics)
	assert.InDelta(t, 2*snap.Loss[19].Loss, snap.Metrics.MSE, 1e-9)
	assert.Equal(t, "ConstantLR", snap.Schedule)
}

func TestTrainerResetClearsHistory(t *testing.T) {
	tr, err := NewTrainer(sample(4), DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < 37; i++ {
		tr.Step()
	}

	tr.Reset()
	snap := tr.Snapshot()
	assert.Equal(t, Params{}, snap.Params)
	assert.Equal(t, 0, snap.Iteration)
	assert.Empty(t, snap.Loss)
	assert.Empty(t, snap.Predictions)
	assert.Empty(t, snap.LearningRates)
	assert.Nil(t, snap.Metrics)
	assert.Len(t, snap.Data, 50, "reset keeps data")
}

func TestTrainerSetDataResets(t *testing.T) {
	tr, err := NewTrainer(sample(5), DefaultConfig())
	require.NoError(t, err)
	tr.Step()

	tr.SetData([]dataset.Point{{X: 1, Y: 2}, {X: 3, Y: 4}})
	snap := tr.Snapshot()
	assert.Equal(t, 0, snap.Iteration)
	assert.Equal(t, []dataset.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, snap.Data)
}

func TestTrainerSettersValidate(t *testing.T) {
	tr, err := NewTrainer(nil, DefaultConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, tr.SetLearningRate(1), ErrLearningRateRange)
	assert.ErrorIs(t, tr.SetIterations(1000), ErrIterationsRange)
	require.NoError(t, tr.SetLearningRate(0.05))
	require.NoError(t, tr.SetIterations(10))
	assert.Equal(t, Config{LearningRate: 0.05, Iterations: 10}, tr.Config())
}

func TestTrainerScheduleIsClamped(t *testing.T) {
	tr, err := NewTrainer(sample(6), Config{LearningRate: 0.01, Iterations: 30})
	require.NoError(t, err)
	tr.SetSchedule(training.NewExponentialLRScheduler(0.5))

	for tr.Step() {
	}
	snap := tr.Snapshot()
	require.Len(t, snap.LearningRates, 30)
	assert.Equal(t, 0.01, snap.LearningRates[0])
	assert.Equal(t, 0.005, snap.LearningRates[1])
	assert.Equal(t, MinLearningRate, snap.LearningRates[29])
	assert.Equal(t, "ExponentialLR", snap.Schedule)
}

func TestTrainerRestore(t *testing.T) {
	tr, err := NewTrainer(sample(7), DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		tr.Step()
	}
	snap := tr.Snapshot()

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(b, &decoded))

	other, err := NewTrainer(nil, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, other.Restore(decoded))

	got := other.Snapshot()
	assert.Equal(t, snap.Params, got.Params)
	assert.Equal(t, snap.Iteration, got.Iteration)
	assert.Equal(t, snap.Loss, got.Loss)
	assert.Equal(t, snap.Predictions, got.Predictions)

	// Both continue identically
	tr.Step()
	other.Step()
	assert.Equal(t, tr.Snapshot().Params, other.Snapshot().Params)

	bad := snap
	bad.Iteration = 1000
	assert.Error(t, other.Restore(bad))
}

func TestTrainerRestoreRejectsInconsistentSnapshot(t *testing.T) {
	tr, err := NewTrainer(sample(9), DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		tr.Step()
	}
	snap := tr.Snapshot()

	cases := map[string]func(s *Snapshot){
		"short loss history":     func(s *Snapshot) { s.Loss = s.Loss[:3] },
		"short rate history":     func(s *Snapshot) { s.LearningRates = s.LearningRates[:4] },
		"negative iteration":     func(s *Snapshot) { s.Iteration = -1 },
		"learning rate too high": func(s *Snapshot) { s.LearningRate = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			bad := snap
			bad.Loss = append([]LossEntry(nil), snap.Loss...)
			bad.LearningRates = append([]float64(nil), snap.LearningRates...)
			mutate(&bad)

			target, err := NewTrainer(sample(10), DefaultConfig())
			require.NoError(t, err)
			target.Step()
			before := target.Snapshot()

			assert.Error(t, target.Restore(bad))
			after := target.Snapshot()
			assert.Equal(t, before.Params, after.Params, "a rejected snapshot leaves the trainer untouched")
			assert.Equal(t, 1, after.Iteration)
			assert.Equal(t, before.Data, after.Data)
		})
	}
}

func TestTrainerRestoreAfterBudgetLowered(t *testing.T) {
	tr, err := NewTrainer(sample(11), DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < MinIterations+5; i++ {
		tr.Step()
	}
	require.NoError(t, tr.SetIterations(MinIterations))
	snap := tr.Snapshot()

	other, err := NewTrainer(nil, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, other.Restore(snap))
	assert.True(t, other.Exhausted())
}

func TestTrainerUnderDriver(t *testing.T) {
	tr, err := NewTrainer(sample(8), Config{LearningRate: 0.01, Iterations: 10})
	require.NoError(t, err)

	sched := loop.NewManualScheduler()
	var frames []Snapshot
	var stops []loop.StopReason
	d := loop.NewDriver[Snapshot](tr, sched, loop.Options[Snapshot]{
		Name:      "regression",
		Interval:  loop.FrameInterval,
		Publisher: loop.PublisherFunc[Snapshot](func(s Snapshot) { frames = append(frames, s) }),
		OnStop:    func(r loop.StopReason) { stops = append(stops, r) },
		Logger:    logging.Discard(),
	})

	require.NoError(t, d.Start())
	sched.Advance(time.Second)

	assert.Equal(t, loop.Idle, d.State())
	assert.Equal(t, []loop.StopReason{loop.StopExhausted}, stops)
	require.Len(t, frames, 10)
	for i, f := range frames {
		assert.Equal(t, i+1, f.Iteration)
		assert.Len(t, f.Loss, i+1, "history is append-only during a run")
	}
	assert.ErrorIs(t, d.Start(), loop.ErrExhausted)

	d.Reset()
	assert.Equal(t, 0, d.Snapshot().Iteration)
	require.NoError(t, d.Start())
}
