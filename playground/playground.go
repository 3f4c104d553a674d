// Package playground wires the three demo widgets to their drivers, publishers and the HTTP
// control surface.
package playground

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/tsawler/go-mlplayground/checkpoints"
	"github.com/tsawler/go-mlplayground/dataset"
	"github.com/tsawler/go-mlplayground/kmeans"
	"github.com/tsawler/go-mlplayground/livefeed"
	"github.com/tsawler/go-mlplayground/logging"
	"github.com/tsawler/go-mlplayground/loop"
	"github.com/tsawler/go-mlplayground/plotting"
	"github.com/tsawler/go-mlplayground/qlearn"
	"github.com/tsawler/go-mlplayground/regression"
	"github.com/tsawler/go-mlplayground/training"
)

// Widget names
const (
	WidgetRegression = "regression"
	WidgetKMeans     = "kmeans"
	WidgetQLearning  = "qlearning"
)

// Control actions
const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionToggle = "toggle"
	ActionReset  = "reset"
)

// Field names read from uploaded CSV files
const (
	FieldX = "x"
	FieldY = "y"
)

var (
	ErrUnknownWidget = errors.New("playground: unknown widget")
	ErrUnknownAction = errors.New("playground: unknown action")
	ErrNoData        = errors.New("playground: widget does not take data")
)

// Widgets lists the widget names in display order
var Widgets = []string{WidgetRegression, WidgetKMeans, WidgetQLearning}

// controller is the type-erased face of a loop.Driver
type controller interface {
	Name() string
	Start() error
	Pause()
	Toggle() error
	Reset()
	State() loop.State
	Ticks() int
	Close()
}

// Status is the published view of one widget
type Status struct {
	Widget   string      `json:"widget"`
	State    loop.State  `json:"state"`
	Ticks    int         `json:"ticks"`
	Snapshot interface{} `json:"snapshot"`
}

// Options carries the collaborators of a Playground
type Options struct {
	Scheduler loop.Scheduler // Defaults to wall-clock timers
	Logger    *logging.Logger
	Feed      *livefeed.Hub // Optional live frame sink
}

// Playground owns the three widgets
type Playground struct {
	cfg   Config
	log   *logging.Logger
	feed  *livefeed.Hub
	saver map[checkpoints.CheckpointFormat]*checkpoints.CheckpointSaver

	mu      sync.Mutex
	dataRng *rand.Rand

	reg    *regression.Trainer
	regDrv *loop.Driver[regression.Snapshot]
	km     *kmeans.Clusterer
	kmDrv  *loop.Driver[kmeans.Snapshot]
	agent  *qlearn.Agent
	qlDrv  *loop.Driver[qlearn.Snapshot]

	drivers map[string]controller
	closers []func()
}

// New builds the widgets from cfg. Each widget gets its own generator derived from
// cfg.Seed so that concurrently running drivers never share one.
func New(cfg Config, opts Options) (*Playground, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Scheduler == nil {
		opts.Scheduler = loop.NewTimerScheduler()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Playground{
		cfg:     cfg,
		log:     opts.Logger,
		feed:    opts.Feed,
		dataRng: rand.New(rand.NewSource(seed)),
		saver: map[checkpoints.CheckpointFormat]*checkpoints.CheckpointSaver{
			checkpoints.FormatJSON:  checkpoints.NewCheckpointSaver(checkpoints.FormatJSON),
			checkpoints.FormatProto: checkpoints.NewCheckpointSaver(checkpoints.FormatProto),
		},
	}

	var plots *plotting.PlottingService
	if cfg.Plotting.Enabled {
		plots = plotting.NewPlottingService(plotting.PlottingServiceConfig{
			BaseURL:       cfg.Plotting.BaseURL,
			Timeout:       time.Duration(cfg.Plotting.Timeout),
			RetryAttempts: cfg.Plotting.RetryAttempts,
			RetryDelay:    time.Second,
		})
		plots.Enable()
		if err := plots.CheckHealth(); err != nil {
			p.log.Warnf("plotting sidecar not reachable yet: %v", err)
		}
	}

	schedule, err := training.NewScheduler(cfg.Regression.Schedule)
	if err != nil {
		return nil, err
	}
	p.reg, err = regression.NewTrainer(
		dataset.LinearSample(p.dataRng, cfg.Regression.Samples),
		regression.Config{
			LearningRate: cfg.Regression.LearningRate,
			Iterations:   cfg.Regression.Iterations,
			Schedule:     schedule,
		},
	)
	if err != nil {
		return nil, err
	}
	p.km, err = kmeans.NewClusterer(
		dataset.UniformCloud(p.dataRng, cfg.KMeans.Points, cfg.KMeans.Extent),
		kmeans.Config{K: cfg.KMeans.K, Extent: cfg.KMeans.Extent},
		rand.New(rand.NewSource(seed+1)),
	)
	if err != nil {
		return nil, err
	}
	p.agent, err = qlearn.NewAgent(qlearn.RandomPolicy(rand.New(rand.NewSource(seed + 2))))
	if err != nil {
		return nil, err
	}

	p.regDrv = loop.NewDriver[regression.Snapshot](p.reg, opts.Scheduler, loop.Options[regression.Snapshot]{
		Name:      WidgetRegression,
		Interval:  time.Duration(cfg.Regression.Interval),
		Publisher: publishers(p, WidgetRegression, plots, plotting.RegressionPlots(WidgetRegression)),
		OnStop:    p.stopped(WidgetRegression),
		Logger:    p.log,
	})
	p.kmDrv = loop.NewDriver[kmeans.Snapshot](p.km, opts.Scheduler, loop.Options[kmeans.Snapshot]{
		Name:      WidgetKMeans,
		Interval:  time.Duration(cfg.KMeans.Interval),
		Publisher: publishers(p, WidgetKMeans, plots, plotting.KMeansPlots(WidgetKMeans)),
		OnStop:    p.stopped(WidgetKMeans),
		Logger:    p.log,
	})
	p.qlDrv = loop.NewDriver[qlearn.Snapshot](p.agent, opts.Scheduler, loop.Options[qlearn.Snapshot]{
		Name:       WidgetQLearning,
		Interval:   time.Duration(cfg.QLearning.Interval),
		DelayFirst: true,
		Publisher:  publishers(p, WidgetQLearning, plots, plotting.QLearningPlots(WidgetQLearning)),
		OnStop:     p.stopped(WidgetQLearning),
		Logger:     p.log,
	})
	p.drivers = map[string]controller{
		WidgetRegression: p.regDrv,
		WidgetKMeans:     p.kmDrv,
		WidgetQLearning:  p.qlDrv,
	}

	if p.feed != nil {
		p.feed.SetCommandHandler(func(cmd livefeed.Command) error {
			return p.Control(cmd.Widget, cmd.Action)
		})
		// Prime the feed so the first client sees every widget
		for _, w := range Widgets {
			st, _ := p.Status(w)
			p.feed.Broadcast(w, st.Snapshot)
		}
	}
	return p, nil
}

// publishers assembles the live feed and plotting publishers of one widget
func publishers[S any](p *Playground, widget string, plots *plotting.PlottingService, build func(S) []plotting.PlotData) loop.Publisher[S] {
	var out loop.Publishers[S]
	if p.feed != nil {
		out = append(out, livefeed.Publisher[S](p.feed, widget))
	}
	if plots != nil {
		pub := plotting.NewPublisher[S](plots, p.cfg.Plotting.Every, build, p.log)
		p.closers = append(p.closers, pub.Close)
		out = append(out, pub)
	}
	return out
}

func (p *Playground) stopped(widget string) func(loop.StopReason) {
	return func(r loop.StopReason) {
		p.log.Infof("%s stopped: %s", widget, r)
	}
}

// Config returns the configuration the playground was built with
func (p *Playground) Config() Config {
	return p.cfg
}

func (p *Playground) driver(widget string) (controller, error) {
	d, ok := p.drivers[widget]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWidget, widget)
	}
	return d, nil
}

// Control applies start, pause, toggle or reset to a widget
func (p *Playground) Control(widget, action string) error {
	d, err := p.driver(widget)
	if err != nil {
		return err
	}

	switch action {
	case ActionStart:
		return d.Start()
	case ActionPause:
		d.Pause()
	case ActionToggle:
		return d.Toggle()
	case ActionReset:
		d.Reset()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// Status returns the run state and latest snapshot of a widget
func (p *Playground) Status(widget string) (Status, error) {
	d, err := p.driver(widget)
	if err != nil {
		return Status{}, err
	}

	st := Status{Widget: widget, State: d.State(), Ticks: d.Ticks()}
	switch widget {
	case WidgetRegression:
		st.Snapshot = p.regDrv.Snapshot()
	case WidgetKMeans:
		st.Snapshot = p.kmDrv.Snapshot()
	case WidgetQLearning:
		st.Snapshot = p.qlDrv.Snapshot()
	}
	return st, nil
}

// UploadCSV replaces a widget's data with the x and y columns of an uploaded file. size is
// the declared upload size, or -1 when unknown. The widget is halted and reset.
func (p *Playground) UploadCSV(widget string, size int64, r io.Reader) (int, error) {
	if _, err := p.driver(widget); err != nil {
		return 0, err
	}
	if widget == WidgetQLearning {
		return 0, fmt.Errorf("%w: %s", ErrNoData, widget)
	}

	table, err := dataset.Ingest(size, r, dataset.UploadOptions{MaxSizeMB: p.cfg.Upload.MaxSizeMB})
	if err != nil {
		return 0, err
	}
	pts := dataset.Points(table, FieldX, FieldY)
	p.setData(widget, pts)
	p.log.Infof("%s: loaded %d uploaded records", widget, len(pts))
	return len(pts), nil
}

// Regenerate replaces a widget's data with a fresh synthetic sample
func (p *Playground) Regenerate(widget string) (int, error) {
	if _, err := p.driver(widget); err != nil {
		return 0, err
	}

	p.mu.Lock()
	var pts []dataset.Point
	switch widget {
	case WidgetRegression:
		pts = dataset.LinearSample(p.dataRng, p.cfg.Regression.Samples)
	case WidgetKMeans:
		pts = dataset.UniformCloud(p.dataRng, p.cfg.KMeans.Points, p.cfg.KMeans.Extent)
	default:
		p.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrNoData, widget)
	}
	p.mu.Unlock()

	p.setData(widget, pts)
	return len(pts), nil
}

func (p *Playground) setData(widget string, pts []dataset.Point) {
	switch widget {
	case WidgetRegression:
		p.regDrv.Reload(func() { p.reg.SetData(pts) })
	case WidgetKMeans:
		p.kmDrv.Reload(func() { p.km.SetData(pts) })
	}
}

// RegressionSettings are the adjustable regression tunables; nil fields are left unchanged
type RegressionSettings struct {
	LearningRate *float64                 `json:"learning_rate,omitempty"`
	Iterations   *int                     `json:"iterations,omitempty"`
	Schedule     *training.ScheduleConfig `json:"schedule,omitempty"`
}

// ConfigureRegression changes the regression tunables without interrupting a run. The
// merge with the current settings happens under the driver lock so concurrent partial
// updates do not overwrite each other
func (p *Playground) ConfigureRegression(s RegressionSettings) error {
	var schedule training.LRScheduler
	if s.Schedule != nil {
		var err error
		if schedule, err = training.NewScheduler(*s.Schedule); err != nil {
			return err
		}
	}

	var err error
	p.regDrv.Adjust(func() {
		cfg := p.reg.Config()
		if s.LearningRate != nil {
			cfg.LearningRate = *s.LearningRate
		}
		if s.Iterations != nil {
			cfg.Iterations = *s.Iterations
		}
		if err = cfg.Validate(); err != nil {
			return
		}
		if err = p.reg.SetLearningRate(cfg.LearningRate); err != nil {
			return
		}
		if err = p.reg.SetIterations(cfg.Iterations); err != nil {
			return
		}
		if schedule != nil {
			p.reg.SetSchedule(schedule)
		}
	})
	return err
}

// SetClusterCount changes k; the clusterer halts and re-initialises
func (p *Playground) SetClusterCount(k int) error {
	cfg := kmeans.Config{K: k, Extent: p.cfg.KMeans.Extent}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var err error
	p.kmDrv.Reload(func() { err = p.km.SetK(k) })
	return err
}

// Checkpoint captures a widget's current state
func (p *Playground) Checkpoint(widget string) (*checkpoints.Checkpoint, error) {
	if _, err := p.driver(widget); err != nil {
		return nil, err
	}

	cp := &checkpoints.Checkpoint{Widget: widget}
	switch widget {
	case WidgetRegression:
		s := p.regDrv.Snapshot()
		cp.Regression = &s
	case WidgetKMeans:
		s := p.kmDrv.Snapshot()
		cp.KMeans = &s
	case WidgetQLearning:
		s := p.qlDrv.Snapshot()
		cp.QLearning = &s
	}
	return cp, nil
}

// Restore loads a checkpoint into its widget. A checkpoint that fails validation is rejected
// before the widget is halted.
func (p *Playground) Restore(cp *checkpoints.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if _, err := p.driver(cp.Widget); err != nil {
		return err
	}

	var err error
	switch {
	case cp.Widget == WidgetRegression && cp.Regression != nil:
		p.regDrv.Reload(func() { err = p.reg.Restore(*cp.Regression) })
	case cp.Widget == WidgetKMeans && cp.KMeans != nil:
		p.kmDrv.Reload(func() { err = p.km.Restore(*cp.KMeans) })
	case cp.Widget == WidgetQLearning && cp.QLearning != nil:
		p.qlDrv.Reload(func() { err = p.agent.Restore(*cp.QLearning) })
	default:
		return fmt.Errorf("%w: snapshot does not match widget %q", checkpoints.ErrInvalidCheckpoint, cp.Widget)
	}
	if err != nil {
		return err
	}
	p.log.Infof("%s: restored checkpoint %s", cp.Widget, cp.Metadata.ID)
	return nil
}

// EncodeCheckpoint captures and serializes a widget's state
func (p *Playground) EncodeCheckpoint(widget string, format checkpoints.CheckpointFormat) ([]byte, error) {
	cp, err := p.Checkpoint(widget)
	if err != nil {
		return nil, err
	}
	saver, err := p.checkpointSaver(format)
	if err != nil {
		return nil, err
	}
	return saver.Encode(cp)
}

func (p *Playground) checkpointSaver(format checkpoints.CheckpointFormat) (*checkpoints.CheckpointSaver, error) {
	saver, ok := p.saver[format]
	if !ok {
		return nil, fmt.Errorf("unsupported checkpoint format: %s", format)
	}
	return saver, nil
}

// DecodeCheckpoint parses a serialized checkpoint and restores it into widget
func (p *Playground) DecodeCheckpoint(widget string, format checkpoints.CheckpointFormat, data []byte) error {
	saver, err := p.checkpointSaver(format)
	if err != nil {
		return err
	}
	cp, err := saver.Decode(data)
	if err != nil {
		return err
	}
	if cp.Widget != widget {
		return fmt.Errorf("%w: checkpoint is for %q, not %q", checkpoints.ErrInvalidCheckpoint, cp.Widget, widget)
	}
	return p.Restore(cp)
}

// Close stops every driver and flushes the plotting publishers
func (p *Playground) Close() {
	for _, w := range Widgets {
		p.drivers[w].Close()
	}
	for _, c := range p.closers {
		c()
	}
}
