package plotting

import (
	"sync"

	"github.com/tsawler/go-mlplayground/logging"
)

// queueSize bounds the plots waiting for the sidecar; further frames are dropped
const queueSize = 16

// Publisher is a loop.Publisher that builds plots from every Nth snapshot and hands them to
// a background sender, so a slow sidecar never stalls the driver.
type Publisher[S any] struct {
	service *PlottingService
	build   func(S) []PlotData
	every   int
	log     *logging.Logger

	mu      sync.Mutex
	count   int
	closed  bool
	dropped int
	queue   chan []PlotData
	wg      sync.WaitGroup
}

// NewPublisher starts a publisher sending every Nth snapshot; every < 1 sends them all
func NewPublisher[S any](service *PlottingService, every int, build func(S) []PlotData, logger *logging.Logger) *Publisher[S] {
	if every < 1 {
		every = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Publisher[S]{
		service: service,
		build:   build,
		every:   every,
		log:     logger,
		queue:   make(chan []PlotData, queueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish counts the snapshot and queues its plots when due
func (p *Publisher[S]) Publish(snapshot S) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.service.IsEnabled() {
		return
	}
	p.count++
	if p.count%p.every != 0 {
		return
	}

	plots := p.build(snapshot)
	if len(plots) == 0 {
		return
	}
	select {
	case p.queue <- plots:
	default:
		p.dropped++
		p.log.Warnf("plotting: sidecar queue full, dropped %d frames so far", p.dropped)
	}
}

// Dropped returns the number of frames discarded because the queue was full
func (p *Publisher[S]) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops accepting snapshots and waits for queued plots to be sent
func (p *Publisher[S]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Publisher[S]) run() {
	defer p.wg.Done()

	for plots := range p.queue {
		if len(plots) == 1 {
			resp, err := p.service.SendPlotDataWithRetry(plots[0])
			if err != nil {
				p.log.Errorf("plotting: %v", err)
				continue
			}
			p.log.Debugf("plotting: sent %s (%s)", plots[0].PlotType, resp.PlotID)
			continue
		}

		resp, err := p.service.BatchSendPlots(plots)
		if err != nil {
			p.log.Errorf("plotting: %v", err)
			continue
		}
		p.log.Debugf("plotting: batch %s sent %d/%d plots", resp.BatchID, resp.Summary.Successful, len(plots))
	}
}
