package calltree

import (
	"math"

	"github.com/getsentry/rtprofile/internal/frame"
)

// NoEndTime signifies that a call is still active and has no end time yet.
const NoEndTime uint64 = math.MaxUint64

// CallRecord is one invocation of a function on a thread. A record is owned
// by its parent, or by its thread's root list when it has no parent.
type CallRecord struct {
	Frame    frame.Frame   `json:"frame"`
	ThreadID uint64        `json:"thread_id"`
	StartNS  uint64        `json:"start_ns"`
	EndNS    uint64        `json:"end_ns"`
	Children []*CallRecord `json:"children,omitempty"`

	parent *CallRecord
}

func NewCallRecord(f frame.Frame, threadID, start uint64) *CallRecord {
	return &CallRecord{
		Frame:    f,
		ThreadID: threadID,
		StartNS:  start,
		EndNS:    NoEndTime,
	}
}

// Parent returns the calling record, or nil for a root.
func (r *CallRecord) Parent() *CallRecord {
	return r.parent
}

// AddChild appends c as the last callee of r.
func (r *CallRecord) AddChild(c *CallRecord) {
	c.parent = r
	r.Children = append(r.Children, c)
}

func (r *CallRecord) Finalized() bool {
	return r.EndNS != NoEndTime
}

// Close sets the end time. An end before the start is raised to the start.
func (r *CallRecord) Close(ts uint64) {
	if ts < r.StartNS {
		ts = r.StartNS
	}
	r.EndNS = ts
}

// CumulativeNS is the time spent in the call including its callees. Active
// records report 0.
func (r *CallRecord) CumulativeNS() uint64 {
	if !r.Finalized() {
		return 0
	}
	return r.EndNS - r.StartNS
}

// SelfNS is the cumulative time minus the cumulative time of the direct
// children, floored at 0.
func (r *CallRecord) SelfNS() uint64 {
	total := r.CumulativeNS()
	var children uint64
	for _, c := range r.Children {
		children += c.CumulativeNS()
	}
	if children >= total {
		return 0
	}
	return total - children
}

// Relink restores parent links below r, after r was decoded.
func (r *CallRecord) Relink() {
	for _, c := range r.Children {
		c.parent = r
		c.Relink()
	}
}

// Walk visits r and its descendants depth-first, passing each record's depth
// relative to r. It stops at the first error.
func Walk(r *CallRecord, fn func(r *CallRecord, depth int) error) error {
	return walk(r, 0, fn)
}

func walk(r *CallRecord, depth int, fn func(*CallRecord, int) error) error {
	if err := fn(r, depth); err != nil {
		return err
	}
	for _, c := range r.Children {
		if err := walk(c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}
