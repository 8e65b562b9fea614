// Package display derives read-only presentation views from a finalized
// forest and its analysis: an indented call tree per thread and a ranked
// flat table. Percentages are relative to the owning thread's total, the
// sum of its roots' cumulative times.
package display

import (
	gojson "github.com/goccy/go-json"

	"github.com/getsentry/rtprofile/internal/analyzer"
	"github.com/getsentry/rtprofile/internal/calltree"
	"github.com/getsentry/rtprofile/internal/frame"
)

type (
	TreeDisplayData struct {
		Record   *calltree.CallRecord
		Depth    int
		Percent  float64
		Children []TreeDisplayData
	}

	ThreadDisplayData struct {
		ThreadID uint64            `json:"thread_id"`
		Name     string            `json:"name,omitempty"`
		TotalNS  uint64            `json:"total_ns"`
		Roots    []TreeDisplayData `json:"roots"`
	}

	treeNodeJSON struct {
		Frame        frame.Frame       `json:"frame"`
		StartNS      uint64            `json:"start_ns"`
		EndNS        uint64            `json:"end_ns"`
		CumulativeNS uint64            `json:"cumulative_ns"`
		SelfNS       uint64            `json:"self_ns"`
		Depth        int               `json:"depth"`
		Percent      float64           `json:"percent"`
		Children     []TreeDisplayData `json:"children,omitempty"`
	}
)

func (n TreeDisplayData) MarshalJSON() ([]byte, error) {
	return gojson.Marshal(treeNodeJSON{
		Frame:        n.Record.Frame,
		StartNS:      n.Record.StartNS,
		EndNS:        n.Record.EndNS,
		CumulativeNS: n.Record.CumulativeNS(),
		SelfNS:       n.Record.SelfNS(),
		Depth:        n.Depth,
		Percent:      n.Percent,
		Children:     n.Children,
	})
}

// TreeView projects every thread of the forest, in ascending thread id order.
func TreeView(forest calltree.Forest, names map[uint64]string) []ThreadDisplayData {
	threads := make([]ThreadDisplayData, 0, len(forest))
	for _, id := range forest.Threads() {
		threads = append(threads, ThreadView(forest, id, names[id]))
	}
	return threads
}

// ThreadView projects the roots of a single thread.
func ThreadView(forest calltree.Forest, threadID uint64, name string) ThreadDisplayData {
	total := forest.TotalNS(threadID)
	roots := forest[threadID]
	t := ThreadDisplayData{
		ThreadID: threadID,
		Name:     name,
		TotalNS:  total,
		Roots:    make([]TreeDisplayData, 0, len(roots)),
	}
	for _, r := range roots {
		t.Roots = append(t.Roots, project(r, 0, total))
	}
	return t
}

func project(r *calltree.CallRecord, depth int, total uint64) TreeDisplayData {
	n := TreeDisplayData{
		Record:  r,
		Depth:   depth,
		Percent: percent(r.CumulativeNS(), total),
	}
	if len(r.Children) > 0 {
		n.Children = make([]TreeDisplayData, 0, len(r.Children))
		for _, c := range r.Children {
			n.Children = append(n.Children, project(c, depth+1, total))
		}
	}
	return n
}

func percent(v, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(v) / float64(total) * 100
}

// Flatten lists the nodes of a thread in depth-first order.
func Flatten(t ThreadDisplayData) []TreeDisplayData {
	var nodes []TreeDisplayData
	var visit func(n TreeDisplayData)
	visit = func(n TreeDisplayData) {
		nodes = append(nodes, n)
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range t.Roots {
		visit(r)
	}
	return nodes
}

// FlatView ranks the analysis by self time, then cumulative time.
func FlatView(a analyzer.Analysis) []analyzer.FunctionAnalysis {
	return a.Ranked()
}
