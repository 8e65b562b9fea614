package tracer

import "github.com/getsentry/rtprofile/internal/frame"

type Action uint8

const (
	CallAction Action = iota + 1
	ReturnAction
)

func (a Action) String() string {
	switch a {
	case CallAction:
		return "call"
	case ReturnAction:
		return "return"
	}
	return "unknown"
}

type (
	// Event notifies that a function began or finished on a thread.
	// Frame is only meaningful for calls. ThreadName is optional and only
	// read the first time a thread is seen.
	Event struct {
		Action      Action
		ThreadID    uint64
		ThreadName  string
		Frame       frame.Frame
		TimestampNS uint64
	}

	// Handler receives events synchronously on the emitting thread. It
	// must not block.
	Handler func(Event)

	// EventSource is a process-wide call/return interception mechanism.
	EventSource interface {
		// SetHandler registers the callback for every event. It is called
		// once, before the first Enable.
		SetHandler(Handler)
		// Enable starts delivering events on every thread.
		Enable() error
		// Disable stops delivering events. Deliveries already in flight
		// may still complete.
		Disable() error
	}

	// Clock is implemented by sources whose timestamps are not on the
	// profiler's default clock.
	Clock interface {
		NowNS() uint64
	}
)
