package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"

	"github.com/getsentry/rtprofile/internal/errorutil"
	"github.com/getsentry/rtprofile/internal/frame"
	"github.com/getsentry/rtprofile/internal/timeutil"
	"github.com/getsentry/rtprofile/internal/tracer"
)

type Action string

const (
	EnterAction  Action = "Enter"
	ExitAction   Action = "Exit"
	UnwindAction Action = "Unwind"
)

var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

type (
	Method struct {
		ID         uint64 `json:"id"`
		Name       string `json:"name"`
		SourceFile string `json:"source_file,omitempty"`
		SourceLine uint32 `json:"source_line,omitempty"`
	}

	LogThread struct {
		ID   uint64 `json:"id"`
		Name string `json:"name,omitempty"`
	}

	LogEvent struct {
		Action      Action `json:"action"`
		ThreadID    uint64 `json:"thread_id"`
		MethodID    uint64 `json:"method_id,omitempty"`
		TimestampNS uint64 `json:"ts_ns"`
	}

	// Log is a recorded stream of call and return events. StartedAt is the
	// wall clock time of the recording start, when the recorder knows it.
	Log struct {
		StartedAt timeutil.Time `json:"started_at"`
		Methods   []Method      `json:"methods,omitempty"`
		Threads   []LogThread   `json:"threads,omitempty"`
		Events    []LogEvent    `json:"events"`
	}

	// Replay delivers the events of a Log. Events of one thread are
	// delivered in log order; threads are played concurrently.
	Replay struct {
		log     Log
		frames  map[uint64]frame.Frame
		names   map[uint64]string
		handler tracer.Handler
		enabled atomic.Bool
		lastNS  atomic.Uint64
	}
)

func (m Method) Frame() frame.Frame {
	return frame.Frame{
		Function: m.Name,
		File:     m.SourceFile,
		Line:     m.SourceLine,
	}
}

// ReadLog decodes a JSON event log, lz4 compressed or not.
func ReadLog(r io.Reader) (Log, error) {
	br := bufio.NewReader(r)
	var in io.Reader = br
	if magic, err := br.Peek(len(lz4Magic)); err == nil && bytes.Equal(magic, lz4Magic) {
		in = lz4.NewReader(br)
	}
	var l Log
	if err := json.NewDecoder(in).Decode(&l); err != nil {
		return Log{}, fmt.Errorf("source: decode event log: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Log{}, err
	}
	return l, nil
}

// Validate checks every event carries a known action.
func (l Log) Validate() error {
	for i, e := range l.Events {
		switch e.Action {
		case EnterAction, ExitAction, UnwindAction:
		default:
			return fmt.Errorf("%w: event %d has unknown action %q", errorutil.ErrDataIntegrity, i, e.Action)
		}
	}
	return nil
}

func NewReplay(l Log) *Replay {
	r := &Replay{
		log:    l,
		frames: make(map[uint64]frame.Frame, len(l.Methods)),
		names:  make(map[uint64]string, len(l.Threads)),
	}
	for _, m := range l.Methods {
		r.frames[m.ID] = m.Frame()
	}
	for _, t := range l.Threads {
		r.names[t.ID] = t.Name
	}
	return r
}

func (r *Replay) SetHandler(h tracer.Handler) {
	r.handler = h
}

func (r *Replay) Enable() error {
	r.enabled.Store(true)
	return nil
}

func (r *Replay) Disable() error {
	r.enabled.Store(false)
	return nil
}

// NowNS returns the latest timestamp delivered so far.
func (r *Replay) NowNS() uint64 {
	return r.lastNS.Load()
}

// Run delivers every event and returns once all threads are played. It
// stops early when the context is done or the replay is disabled.
func (r *Replay) Run(ctx context.Context) error {
	if r.handler == nil {
		return errors.New("source: replay has no handler")
	}
	var order []uint64
	byThread := make(map[uint64][]LogEvent)
	for _, e := range r.log.Events {
		if _, ok := byThread[e.ThreadID]; !ok {
			order = append(order, e.ThreadID)
		}
		byThread[e.ThreadID] = append(byThread[e.ThreadID], e)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, tid := range order {
		events := byThread[tid]
		g.Go(func() error {
			for _, e := range events {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !r.enabled.Load() {
					return nil
				}
				r.deliver(e)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Replay) deliver(e LogEvent) {
	for {
		last := r.lastNS.Load()
		if e.TimestampNS <= last || r.lastNS.CompareAndSwap(last, e.TimestampNS) {
			break
		}
	}
	ev := tracer.Event{
		ThreadID:    e.ThreadID,
		ThreadName:  r.names[e.ThreadID],
		TimestampNS: e.TimestampNS,
	}
	if e.Action == EnterAction {
		ev.Action = tracer.CallAction
		f, ok := r.frames[e.MethodID]
		if !ok {
			f = frame.Unknown(e.MethodID)
		}
		ev.Frame = f
	} else {
		ev.Action = tracer.ReturnAction
	}
	r.handler(ev)
}

// Profile replays the log through a new profiler and returns the stopped
// session.
func Profile(ctx context.Context, l Log, opts ...tracer.Option) (*tracer.Result, error) {
	r := NewReplay(l)
	p := tracer.New(r, opts...)
	if err := p.Start(); err != nil {
		return nil, err
	}
	runErr := r.Run(ctx)
	if err := p.Stop(); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, fmt.Errorf("source: replay: %w", runErr)
	}
	return p.Result()
}
