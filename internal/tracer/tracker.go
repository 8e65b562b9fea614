package tracer

import (
	"github.com/getsentry/rtprofile/internal/calltree"
)

// threadStack is the active-call stack of one thread. Only the owning
// thread touches it while profiling.
type threadStack struct {
	store   *calltree.Store
	records []*calltree.CallRecord
	// depth counts every open call, including the ones too deep to record.
	depth  int
	lastNS uint64
}

// clamp keeps the thread's timestamps non-decreasing.
func (s *threadStack) clamp(ts uint64) uint64 {
	if ts < s.lastNS {
		return s.lastNS
	}
	s.lastNS = ts
	return ts
}

func (s *threadStack) call(e Event, maxDepth int) {
	ts := s.clamp(e.TimestampNS)
	s.depth++
	if maxDepth > 0 && s.depth > maxDepth {
		return
	}
	r := calltree.NewCallRecord(e.Frame, e.ThreadID, ts)
	if n := len(s.records); n > 0 {
		s.records[n-1].AddChild(r)
	} else {
		s.store.AppendRoot(e.ThreadID, r)
	}
	s.records = append(s.records, r)
}

// ret closes the innermost open call. It reports false when the stack is
// empty.
func (s *threadStack) ret(e Event, maxDepth int) bool {
	if s.depth == 0 {
		return false
	}
	ts := s.clamp(e.TimestampNS)
	s.depth--
	if maxDepth > 0 && s.depth >= maxDepth {
		return true
	}
	n := len(s.records) - 1
	r := s.records[n]
	s.records[n] = nil
	s.records = s.records[:n]
	r.Close(ts)
	return true
}

// closeAll finalizes every open call, innermost first.
func (s *threadStack) closeAll(ts uint64) {
	if ts < s.lastNS {
		ts = s.lastNS
	}
	for i := len(s.records) - 1; i >= 0; i-- {
		s.records[i].Close(ts)
	}
	s.records = nil
	s.depth = 0
}
