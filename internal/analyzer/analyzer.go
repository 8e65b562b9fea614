// Package analyzer aggregates a finalized call forest into per-function
// statistics summed across every call site and thread.
package analyzer

import (
	"sort"

	"github.com/getsentry/rtprofile/internal/calltree"
	"github.com/getsentry/rtprofile/internal/frame"
	"github.com/getsentry/rtprofile/internal/quantile"
)

type (
	// FunctionAnalysis aggregates every invocation sharing one identity.
	FunctionAnalysis struct {
		Frame            frame.Frame
		Calls            uint64
		SelfTimeNS       uint64
		CumulativeTimeNS uint64
		// SelfTimesNS holds the self time of each invocation, in visit order.
		SelfTimesNS []uint64
		Callers     map[frame.Frame]struct{}
		Callees     map[frame.Frame]struct{}
	}

	// Analysis maps a function identity to its aggregate.
	Analysis map[frame.Frame]FunctionAnalysis

	FunctionMetrics struct {
		Function         string        `json:"function"`
		File             string        `json:"filename,omitempty"`
		Line             uint32        `json:"lineno,omitempty"`
		Fingerprint      uint64        `json:"fingerprint"`
		Calls            uint64        `json:"calls"`
		SelfTimeNS       uint64        `json:"self_time_ns"`
		CumulativeTimeNS uint64        `json:"cumulative_time_ns"`
		AvgSelfTimeNS    float64       `json:"avg_self_time_ns"`
		P50              float64       `json:"p50"`
		P75              float64       `json:"p75"`
		P95              float64       `json:"p95"`
		P99              float64       `json:"p99"`
		Callers          []frame.Frame `json:"callers"`
		Callees          []frame.Frame `json:"callees"`
	}
)

// Analyze walks every tree of every thread and returns the flat profile.
// Records still active contribute a call with zero time.
func Analyze(forest calltree.Forest) Analysis {
	functions := make(map[frame.Frame]*FunctionAnalysis)
	get := func(f frame.Frame) *FunctionAnalysis {
		fa, ok := functions[f]
		if !ok {
			fa = &FunctionAnalysis{
				Frame:   f,
				Callers: make(map[frame.Frame]struct{}),
				Callees: make(map[frame.Frame]struct{}),
			}
			functions[f] = fa
		}
		return fa
	}

	var visit func(r *calltree.CallRecord)
	visit = func(r *calltree.CallRecord) {
		fa := get(r.Frame)
		self := r.SelfNS()
		fa.Calls++
		fa.SelfTimeNS += self
		fa.CumulativeTimeNS += r.CumulativeNS()
		fa.SelfTimesNS = append(fa.SelfTimesNS, self)
		if p := r.Parent(); p != nil {
			fa.Callers[p.Frame] = struct{}{}
			get(p.Frame).Callees[r.Frame] = struct{}{}
		}
		for _, c := range r.Children {
			visit(c)
		}
	}
	for _, id := range forest.Threads() {
		for _, root := range forest[id] {
			visit(root)
		}
	}

	a := make(Analysis, len(functions))
	for f, fa := range functions {
		a[f] = *fa
	}
	return a
}

// CallerList returns the distinct callers in identity order.
func (fa FunctionAnalysis) CallerList() []frame.Frame {
	return sortedFrames(fa.Callers)
}

// CalleeList returns the distinct callees in identity order.
func (fa FunctionAnalysis) CalleeList() []frame.Frame {
	return sortedFrames(fa.Callees)
}

func (fa FunctionAnalysis) Metrics() FunctionMetrics {
	q := quantile.FromDurations(fa.SelfTimesNS)
	q.Sort()
	return FunctionMetrics{
		Function:         fa.Frame.Function,
		File:             fa.Frame.File,
		Line:             fa.Frame.Line,
		Fingerprint:      fa.Frame.Fingerprint(),
		Calls:            fa.Calls,
		SelfTimeNS:       fa.SelfTimeNS,
		CumulativeTimeNS: fa.CumulativeTimeNS,
		AvgSelfTimeNS:    q.Mean(),
		P50:              q.Percentile(0.50),
		P75:              q.Percentile(0.75),
		P95:              q.Percentile(0.95),
		P99:              q.Percentile(0.99),
		Callers:          fa.CallerList(),
		Callees:          fa.CalleeList(),
	}
}

// Less ranks by self time, then cumulative time, both descending, then by
// identity.
func (fa FunctionAnalysis) Less(o FunctionAnalysis) bool {
	if fa.SelfTimeNS != o.SelfTimeNS {
		return fa.SelfTimeNS > o.SelfTimeNS
	}
	if fa.CumulativeTimeNS != o.CumulativeTimeNS {
		return fa.CumulativeTimeNS > o.CumulativeTimeNS
	}
	return fa.Frame.Less(o.Frame)
}

// Ranked returns the entries ordered by Less.
func (a Analysis) Ranked() []FunctionAnalysis {
	functions := make([]FunctionAnalysis, 0, len(a))
	for _, fa := range a {
		functions = append(functions, fa)
	}
	sort.Slice(functions, func(i, j int) bool {
		return functions[i].Less(functions[j])
	})
	return functions
}

// Metrics returns the metrics of every function, ranked.
func (a Analysis) Metrics() []FunctionMetrics {
	ranked := a.Ranked()
	metrics := make([]FunctionMetrics, 0, len(ranked))
	for _, fa := range ranked {
		metrics = append(metrics, fa.Metrics())
	}
	return metrics
}

func sortedFrames(set map[frame.Frame]struct{}) []frame.Frame {
	frames := make([]frame.Frame, 0, len(set))
	for f := range set {
		frames = append(frames, f)
	}
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Less(frames[j])
	})
	return frames
}
