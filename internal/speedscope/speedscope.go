// Package speedscope builds documents in the speedscope file format.
package speedscope

import (
	"fmt"
	"path"

	"github.com/getsentry/rtprofile/internal/calltree"
	"github.com/getsentry/rtprofile/internal/frame"
)

const (
	Schema = "https://www.speedscope.app/file-format-schema.json"

	ValueUnitNanoseconds ValueUnit = "nanoseconds"

	EventTypeOpenFrame  EventType = "O"
	EventTypeCloseFrame EventType = "C"

	ProfileTypeEvented ProfileType = "evented"
)

type (
	Frame struct {
		File string `json:"file,omitempty"`
		Line uint32 `json:"line,omitempty"`
		Name string `json:"name"`
	}

	Event struct {
		Type  EventType `json:"type"`
		Frame int       `json:"frame"`
		At    uint64    `json:"at"`
	}

	EventedProfile struct {
		EndValue   uint64      `json:"endValue"`
		Events     []Event     `json:"events"`
		Name       string      `json:"name"`
		StartValue uint64      `json:"startValue"`
		ThreadID   uint64      `json:"threadID"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	EventType   string
	ProfileType string
	ValueUnit   string

	Output struct {
		Schema             string           `json:"$schema"`
		ActiveProfileIndex int              `json:"activeProfileIndex"`
		DurationNS         uint64           `json:"durationNS"`
		Exporter           string           `json:"exporter,omitempty"`
		Name               string           `json:"name,omitempty"`
		ProfileID          string           `json:"profileID,omitempty"`
		Profiles           []EventedProfile `json:"profiles"`
		Shared             SharedData       `json:"shared"`
	}
)

// FromForest returns one evented profile per thread. Event times are
// relative to startNS.
func FromForest(forest calltree.Forest, names map[uint64]string, startNS, durationNS uint64) Output {
	o := Output{
		Schema:     Schema,
		DurationNS: durationNS,
		Exporter:   "rtprofile",
		Profiles:   []EventedProfile{},
		Shared:     SharedData{Frames: []Frame{}},
	}
	index := make(map[frame.Frame]int)
	frameIndex := func(f frame.Frame) int {
		if i, ok := index[f]; ok {
			return i
		}
		i := len(o.Shared.Frames)
		index[f] = i
		o.Shared.Frames = append(o.Shared.Frames, Frame{
			File: path.Base(f.File),
			Line: f.Line,
			Name: f.Function,
		})
		return i
	}
	rel := func(ts uint64) uint64 {
		if ts < startNS {
			return 0
		}
		return ts - startNS
	}

	for _, tid := range forest.Threads() {
		name := names[tid]
		if name == "" {
			name = fmt.Sprintf("Thread %d", tid)
		}
		p := EventedProfile{
			EndValue: durationNS,
			Events:   []Event{},
			Name:     name,
			ThreadID: tid,
			Type:     ProfileTypeEvented,
			Unit:     ValueUnitNanoseconds,
		}
		var visit func(r *calltree.CallRecord)
		visit = func(r *calltree.CallRecord) {
			i := frameIndex(r.Frame)
			p.Events = append(p.Events, Event{Type: EventTypeOpenFrame, Frame: i, At: rel(r.StartNS)})
			for _, c := range r.Children {
				visit(c)
			}
			end := r.EndNS
			if !r.Finalized() {
				end = startNS + durationNS
			}
			p.Events = append(p.Events, Event{Type: EventTypeCloseFrame, Frame: i, At: rel(end)})
		}
		for _, root := range forest[tid] {
			visit(root)
		}
		if n := len(p.Events); n > 0 && p.Events[n-1].At > p.EndValue {
			p.EndValue = p.Events[n-1].At
		}
		o.Profiles = append(o.Profiles, p)
	}
	return o
}
