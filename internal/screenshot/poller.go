// Package screenshot polls the agent's browser workers for their latest
// frame. Frames are advisory: they are shown to the user and optionally
// archived, but never touch session state.
package screenshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/logger"
	"github.com/bowerhall/roomchat/internal/metrics"
)

const (
	DefaultSchedule = "@every 2s"
	StatusOK        = "ok"
	StatusNoBrowser = "no_browser"
	statusError     = "error"
)

// Workers are the browser workers the agent runs.
var Workers = []string{"a", "b"}

type Fetcher interface {
	Screenshot(ctx context.Context, worker string) (chat.Screenshot, error)
}

// Archiver stores frames that changed, e.g. in object storage.
type Archiver interface {
	ArchiveScreenshot(ctx context.Context, worker string, at time.Time, image []byte) (string, error)
}

// Notifier surfaces repeated background failures to the user.
type Notifier interface {
	Warn(component, message string, err error)
	Clear(component string)
}

type Frame struct {
	Worker string
	Status string
	Image  []byte // decoded, nil without a browser
	At     time.Time
}

type Poller struct {
	fetcher  Fetcher
	archiver Archiver
	notifier Notifier
	metrics  *metrics.Metrics
	schedule string
	workers  []string
	timeout  time.Duration
	onFrame  func(Frame)

	mu     sync.Mutex
	last   map[string]string // worker -> status + encoded frame
	frames map[string]Frame
	cron   *cron.Cron
}

type Option func(*Poller)

func WithArchiver(a Archiver) Option {
	return func(p *Poller) {
		p.archiver = a
	}
}

func WithNotifier(n Notifier) Option {
	return func(p *Poller) {
		p.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithSchedule overrides the polling schedule. Any robfig/cron spec works,
// including descriptors such as "@every 5s".
func WithSchedule(spec string) Option {
	return func(p *Poller) {
		if spec != "" {
			p.schedule = spec
		}
	}
}

func WithWorkers(workers ...string) Option {
	return func(p *Poller) {
		p.workers = workers
	}
}

// WithOnFrame registers a callback for frames that differ from the previous
// one of the same worker.
func WithOnFrame(fn func(Frame)) Option {
	return func(p *Poller) {
		p.onFrame = fn
	}
}

func New(f Fetcher, opts ...Option) (*Poller, error) {
	p := &Poller{
		fetcher:  f,
		schedule: DefaultSchedule,
		workers:  Workers,
		timeout:  5 * time.Second,
		last:     make(map[string]string),
		frames:   make(map[string]Frame),
	}
	for _, opt := range opts {
		opt(p)
	}

	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return nil, fmt.Errorf("invalid screenshot schedule %q: %w", p.schedule, err)
	}
	return p, nil
}

// Start begins polling every worker on the schedule until ctx is done or
// Stop is called. A poll still running when the next one is due is skipped.
func (p *Poller) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	for _, worker := range p.workers {
		w := worker
		if _, err := c.AddFunc(p.schedule, func() {
			if ctx.Err() != nil {
				return
			}
			p.pollScheduled(ctx, w)
		}); err != nil {
			return fmt.Errorf("schedule worker %s: %w", w, err)
		}
	}

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()

	c.Start()
	logger.Debug("screenshot poller started", "schedule", p.schedule, "workers", p.workers)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

func (p *Poller) pollScheduled(ctx context.Context, worker string) {
	component := "screenshot " + worker
	if _, _, err := p.Poll(ctx, worker); err != nil {
		logger.Debug("screenshot poll failed", "worker", worker, "error", err)
		if p.notifier != nil && ctx.Err() == nil {
			p.notifier.Warn(component, "browser view unavailable", err)
		}
		return
	}
	if p.notifier != nil {
		p.notifier.Clear(component)
	}
}

// Stop halts scheduling and waits for running polls to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Poll fetches one worker's frame now. It reports whether the frame differs
// from the last one seen for that worker.
func (p *Poller) Poll(ctx context.Context, worker string) (Frame, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	shot, err := p.fetcher.Screenshot(ctx, worker)
	if err != nil {
		p.metrics.Screenshot(worker, statusError)
		return Frame{}, false, err
	}

	frame := Frame{Worker: worker, Status: shot.Status, At: time.Now()}
	encoded := ""
	if shot.Screenshot != nil {
		encoded = *shot.Screenshot
		frame.Image, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			p.metrics.Screenshot(worker, statusError)
			return Frame{}, false, fmt.Errorf("decode screenshot: %w", err)
		}
	}
	p.metrics.Screenshot(worker, frame.Status)

	key := frame.Status + ":" + encoded

	p.mu.Lock()
	changed := p.last[worker] != key
	p.last[worker] = key
	p.frames[worker] = frame
	p.mu.Unlock()

	if !changed {
		return frame, false, nil
	}

	if p.archiver != nil && len(frame.Image) > 0 {
		name, err := p.archiver.ArchiveScreenshot(ctx, worker, frame.At, frame.Image)
		if err != nil {
			logger.Warn("failed to archive screenshot", "worker", worker, "error", err)
			if p.notifier != nil {
				p.notifier.Warn("archive", "screenshot upload failed", err)
			}
		} else {
			logger.Debug("screenshot archived", "worker", worker, "name", name)
		}
	}
	if p.onFrame != nil {
		p.onFrame(frame)
	}
	return frame, true, nil
}

// Latest returns the last frame fetched for a worker.
func (p *Poller) Latest(worker string) (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[worker]
	return f, ok
}
