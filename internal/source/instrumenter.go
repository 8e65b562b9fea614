// Package source provides event sources for the tracer: in-process
// instrumentation of Go code and replay of recorded event logs.
package source

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/rtprofile/internal/frame"
	"github.com/getsentry/rtprofile/internal/tracer"
)

type (
	// Instrumenter emits events for functions that call Thread.Enter.
	Instrumenter struct {
		handler atomic.Value
		enabled atomic.Bool
		// session counts Enable calls. A return is only emitted in the
		// session its call was emitted in.
		session atomic.Uint64
		nextID  atomic.Uint64
		epoch   time.Time
	}

	// Thread is a logical thread of execution. A Thread must not be used
	// from more than one goroutine at a time.
	Thread struct {
		inst *Instrumenter
		id   uint64
		name string
	}
)

func NewInstrumenter() *Instrumenter {
	return &Instrumenter{epoch: time.Now()}
}

func (i *Instrumenter) SetHandler(h tracer.Handler) {
	i.handler.Store(h)
}

func (i *Instrumenter) Enable() error {
	i.session.Add(1)
	i.enabled.Store(true)
	return nil
}

func (i *Instrumenter) Disable() error {
	i.enabled.Store(false)
	return nil
}

// NowNS returns the monotonic time since the instrumenter was created.
func (i *Instrumenter) NowNS() uint64 {
	return uint64(time.Since(i.epoch))
}

// NewThread returns a thread with a fresh id.
func (i *Instrumenter) NewThread(name string) *Thread {
	return &Thread{inst: i, id: i.nextID.Add(1), name: name}
}

// emit delivers e to the handler and returns the session it was emitted in.
func (i *Instrumenter) emit(e tracer.Event) (uint64, bool) {
	if !i.enabled.Load() {
		return 0, false
	}
	h, _ := i.handler.Load().(tracer.Handler)
	if h == nil {
		return 0, false
	}
	session := i.session.Load()
	e.TimestampNS = i.NowNS()
	h(e)
	return session, true
}

func (t *Thread) ID() uint64 {
	return t.id
}

// Enter records a call of the calling function and returns the func
// recording its return, meant to be deferred:
//
//	defer th.Enter()()
func (t *Thread) Enter() func() {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return t.enter(frame.Frame{Function: "unknown"})
	}
	return t.enter(callerFrame(pc))
}

// EnterFunc is Enter with an explicit function name.
func (t *Thread) EnterFunc(name string) func() {
	_, file, line, _ := runtime.Caller(1)
	return t.enter(frame.Frame{Function: name, File: file, Line: uint32(line)})
}

func (t *Thread) enter(f frame.Frame) func() {
	session, called := t.inst.emit(tracer.Event{
		Action:     tracer.CallAction,
		ThreadID:   t.id,
		ThreadName: t.name,
		Frame:      f,
	})
	if !called {
		return func() {}
	}
	return func() {
		// The call belongs to a stopped session.
		if t.inst.session.Load() != session {
			return
		}
		t.inst.emit(tracer.Event{
			Action:     tracer.ReturnAction,
			ThreadID:   t.id,
			ThreadName: t.name,
		})
	}
}

// callerFrame identifies a function by its name and the position of its
// entry point, so every call site of a function maps to the same frame.
func callerFrame(pc uintptr) frame.Frame {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return frame.Frame{Function: "unknown"}
	}
	file, line := fn.FileLine(fn.Entry())
	return frame.Frame{
		Function: fn.Name(),
		File:     file,
		Line:     uint32(line),
	}
}
