// Package pprofutil converts call trees to the pprof format.
package pprofutil

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"

	"github.com/getsentry/rtprofile/internal/calltree"
	"github.com/getsentry/rtprofile/internal/frame"
)

type builder struct {
	p         *profile.Profile
	locations map[frame.Frame]*profile.Location
	samples   map[string]*profile.Sample
}

// FromForest returns a profile with one sample per distinct call path of
// each thread. The values are the number of calls, the self time and the
// cumulative time of the path's leaf. startedAt is the wall clock time the
// session started at.
func FromForest(forest calltree.Forest, names map[uint64]string, startedAt time.Time, durationNS uint64) *profile.Profile {
	b := builder{
		p: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "calls", Unit: "count"},
				{Type: "self", Unit: "nanoseconds"},
				{Type: "cumulative", Unit: "nanoseconds"},
			},
			DefaultSampleType: "self",
			TimeNanos:         startedAt.UnixNano(),
			DurationNanos:     int64(durationNS),
		},
		locations: make(map[frame.Frame]*profile.Location),
		samples:   make(map[string]*profile.Sample),
	}
	for _, tid := range forest.Threads() {
		var stack []*profile.Location
		var visit func(r *calltree.CallRecord)
		visit = func(r *calltree.CallRecord) {
			stack = append(stack, b.location(r.Frame))
			b.add(tid, names[tid], stack, r)
			for _, c := range r.Children {
				visit(c)
			}
			stack = stack[:len(stack)-1]
		}
		for _, root := range forest[tid] {
			visit(root)
		}
	}
	return b.p
}

func (b *builder) location(f frame.Frame) *profile.Location {
	if l, ok := b.locations[f]; ok {
		return l
	}
	fn := &profile.Function{
		ID:        uint64(len(b.p.Function) + 1),
		Name:      f.Function,
		Filename:  f.File,
		StartLine: int64(f.Line),
	}
	b.p.Function = append(b.p.Function, fn)
	l := &profile.Location{
		ID:   uint64(len(b.p.Location) + 1),
		Line: []profile.Line{{Function: fn, Line: int64(f.Line)}},
	}
	b.p.Location = append(b.p.Location, l)
	b.locations[f] = l
	return l
}

// add accounts r on the path ending at the top of stack.
func (b *builder) add(threadID uint64, name string, stack []*profile.Location, r *calltree.CallRecord) {
	var key strings.Builder
	key.WriteString(strconv.FormatUint(threadID, 10))
	for _, l := range stack {
		key.WriteByte(';')
		key.WriteString(strconv.FormatUint(l.ID, 10))
	}
	s, ok := b.samples[key.String()]
	if !ok {
		locations := make([]*profile.Location, len(stack))
		for i, l := range stack {
			locations[len(stack)-1-i] = l
		}
		s = &profile.Sample{
			Location: locations,
			Value:    make([]int64, 3),
			NumLabel: map[string][]int64{"thread_id": {int64(threadID)}},
		}
		if name != "" {
			s.Label = map[string][]string{"thread_name": {name}}
		}
		b.samples[key.String()] = s
		b.p.Sample = append(b.p.Sample, s)
	}
	s.Value[0]++
	s.Value[1] += int64(r.SelfNS())
	s.Value[2] += int64(r.CumulativeNS())
}
