// Package tracer turns a stream of call/return events into per-thread call
// trees.
//
// Every thread owns its active-call stack, so event handling takes no
// exclusive lock once a thread is registered. Registration of a new thread
// and the start/stop transitions are the only points of mutual exclusion:
// deliveries hold the lifecycle lock shared, Start and Stop hold it
// exclusively, so Stop never observes a record mid-mutation.
package tracer

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/rtprofile/internal/analyzer"
	"github.com/getsentry/rtprofile/internal/calltree"
	"github.com/getsentry/rtprofile/internal/display"
	"github.com/getsentry/rtprofile/internal/errorutil"
	"github.com/getsentry/rtprofile/internal/logutil"
)

type (
	Option func(*Profiler)

	Profiler struct {
		source   EventSource
		now      func() uint64
		maxDepth int
		logger   zerolog.Logger

		// control serializes Start and Stop.
		control   sync.Mutex
		lifecycle sync.RWMutex
		running   bool
		registry  sync.Mutex
		stacks    *sync.Map
		store     *calltree.Store
		startedNS uint64

		mismatched atomic.Uint64
		last       *Result
	}

	// Result is the finalized data of a stopped session. It is never
	// mutated once built.
	Result struct {
		Forest      calltree.Forest
		ThreadNames map[uint64]string
		StartedNS   uint64
		StoppedNS   uint64
		Mismatched  uint64

		once     sync.Once
		analysis analyzer.Analysis
	}
)

// WithClock sets the clock used for the session start and for finalizing
// calls still open at Stop. It must share the time base of the source.
func WithClock(now func() uint64) Option {
	return func(p *Profiler) {
		p.now = now
	}
}

// WithMaxDepth stops recording calls nested deeper than depth. Zero means
// no limit.
func WithMaxDepth(depth int) Option {
	return func(p *Profiler) {
		p.maxDepth = depth
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Profiler) {
		p.logger = l
	}
}

// New returns a stopped profiler listening to source. Unless WithClock is
// given, the source's clock is used when it has one, else the monotonic
// time since New.
func New(source EventSource, opts ...Option) *Profiler {
	p := &Profiler{
		source: source,
		stacks: &sync.Map{},
		store:  calltree.NewStore(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.now == nil {
		if c, ok := source.(Clock); ok {
			p.now = c.NowNS
		} else {
			epoch := time.Now()
			p.now = func() uint64 {
				return uint64(time.Since(epoch))
			}
		}
	}
	p.logger = logutil.Burst(p.logger.With().Str("component", "tracer").Logger(), 10, time.Second)
	source.SetHandler(p.handle)
	return p
}

// Start begins a new session. The previous session's result stays
// readable until the next Stop.
func (p *Profiler) Start() error {
	p.control.Lock()
	defer p.control.Unlock()
	if p.running {
		return errorutil.ErrAlreadyRunning
	}

	p.lifecycle.Lock()
	p.store = calltree.NewStore()
	p.stacks = &sync.Map{}
	p.mismatched.Store(0)
	p.startedNS = p.now()
	p.running = true
	p.lifecycle.Unlock()

	if err := p.source.Enable(); err != nil {
		p.lifecycle.Lock()
		p.running = false
		p.lifecycle.Unlock()
		return fmt.Errorf("tracer: enable event source: %w", err)
	}
	p.logger.Debug().Uint64("started_ns", p.startedNS).Msg("profiling started")
	return nil
}

// Stop ends the session and finalizes every call still open, innermost
// first, with the current time.
func (p *Profiler) Stop() error {
	p.control.Lock()
	defer p.control.Unlock()
	if !p.running {
		return errorutil.ErrNotRunning
	}

	disableErr := p.source.Disable()

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	now := p.now()
	if now < p.startedNS {
		now = p.startedNS
	}
	p.stacks.Range(func(_, v interface{}) bool {
		v.(*threadStack).closeAll(now)
		return true
	})
	p.running = false
	p.last = &Result{
		Forest:      p.store.Forest(),
		ThreadNames: p.store.ThreadNames(),
		StartedNS:   p.startedNS,
		StoppedNS:   now,
		Mismatched:  p.mismatched.Load(),
	}
	p.logger.Debug().
		Int("threads", len(p.last.Forest)).
		Uint64("mismatched", p.last.Mismatched).
		Msg("profiling stopped")

	if disableErr != nil {
		return fmt.Errorf("tracer: disable event source: %w", disableErr)
	}
	return nil
}

func (p *Profiler) Running() bool {
	p.control.Lock()
	defer p.control.Unlock()
	return p.running
}

// Mismatched returns the number of return events skipped in the current or
// last session because their thread had no open call.
func (p *Profiler) Mismatched() uint64 {
	return p.mismatched.Load()
}

func (p *Profiler) handle(e Event) {
	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()
	if !p.running {
		return
	}
	s := p.stack(e)
	switch e.Action {
	case CallAction:
		s.call(e, p.maxDepth)
	case ReturnAction:
		if !s.ret(e, p.maxDepth) {
			p.mismatched.Add(1)
			p.logger.Warn().
				Err(errorutil.ErrMismatchedReturn).
				Uint64("thread_id", e.ThreadID).
				Uint64("ts_ns", e.TimestampNS).
				Msg("skipping return event")
		}
	}
}

// stack returns the stack of the event's thread, registering the thread
// on first sight.
func (p *Profiler) stack(e Event) *threadStack {
	if v, ok := p.stacks.Load(e.ThreadID); ok {
		return v.(*threadStack)
	}
	p.registry.Lock()
	defer p.registry.Unlock()
	if v, ok := p.stacks.Load(e.ThreadID); ok {
		return v.(*threadStack)
	}
	p.store.RegisterThread(e.ThreadID, e.ThreadName)
	s := &threadStack{store: p.store}
	p.stacks.Store(e.ThreadID, s)
	return s
}

// Result returns the last stopped session.
func (p *Profiler) Result() (*Result, error) {
	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()
	if p.last == nil {
		return nil, errorutil.ErrNoDataAvailable
	}
	return p.last, nil
}

func (p *Profiler) Forest() (calltree.Forest, error) {
	r, err := p.Result()
	if err != nil {
		return nil, err
	}
	return r.Forest, nil
}

func (p *Profiler) Functions() (analyzer.Analysis, error) {
	r, err := p.Result()
	if err != nil {
		return nil, err
	}
	return r.Functions(), nil
}

func (p *Profiler) TreeView() ([]display.ThreadDisplayData, error) {
	r, err := p.Result()
	if err != nil {
		return nil, err
	}
	return r.TreeView(), nil
}

func (p *Profiler) FlatView() ([]analyzer.FunctionAnalysis, error) {
	r, err := p.Result()
	if err != nil {
		return nil, err
	}
	return r.FlatView(), nil
}

// PrintCallTree writes the call tree of the last session to stdout.
func (p *Profiler) PrintCallTree() error {
	return p.WriteCallTree(os.Stdout)
}

func (p *Profiler) WriteCallTree(w io.Writer) error {
	r, err := p.Result()
	if err != nil {
		return err
	}
	return display.RenderTree(w, r.TreeView())
}

// Functions analyzes the forest once and returns the same analysis after.
func (r *Result) Functions() analyzer.Analysis {
	r.once.Do(func() {
		r.analysis = analyzer.Analyze(r.Forest)
	})
	return r.analysis
}

func (r *Result) TreeView() []display.ThreadDisplayData {
	return display.TreeView(r.Forest, r.ThreadNames)
}

func (r *Result) FlatView() []analyzer.FunctionAnalysis {
	return display.FlatView(r.Functions())
}

func (r *Result) DurationNS() uint64 {
	return r.StoppedNS - r.StartedNS
}
