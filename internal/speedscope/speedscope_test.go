package speedscope

import (
	"testing"

	"github.com/getsentry/rtprofile/internal/calltree"
	"github.com/getsentry/rtprofile/internal/frame"
	"github.com/getsentry/rtprofile/internal/testutil"
)

func call(f frame.Frame, thread, start, end uint64, children ...*calltree.CallRecord) *calltree.CallRecord {
	r := calltree.NewCallRecord(f, thread, start)
	for _, c := range children {
		r.AddChild(c)
	}
	r.Close(end)
	return r
}

func TestFromForest(t *testing.T) {
	f := frame.Frame{Function: "f", File: "/src/main.py", Line: 1}
	g := frame.Frame{Function: "g", File: "/src/main.py", Line: 5}

	tests := []struct {
		name   string
		forest calltree.Forest
		names  map[uint64]string
		want   Output
	}{
		{
			name:   "empty",
			forest: calltree.Forest{},
			want: Output{
				Schema:     Schema,
				DurationNS: 100,
				Exporter:   "rtprofile",
				Profiles:   []EventedProfile{},
				Shared:     SharedData{Frames: []Frame{}},
			},
		},
		{
			name: "nested calls",
			forest: calltree.Forest{
				2: {call(g, 2, 120, 130)},
				1: {call(f, 1, 100, 150, call(g, 1, 130, 150))},
			},
			names: map[uint64]string{1: "main"},
			want: Output{
				Schema:     Schema,
				DurationNS: 100,
				Exporter:   "rtprofile",
				Profiles: []EventedProfile{
					{
						EndValue: 100,
						Events: []Event{
							{Type: EventTypeOpenFrame, Frame: 0, At: 0},
							{Type: EventTypeOpenFrame, Frame: 1, At: 30},
							{Type: EventTypeCloseFrame, Frame: 1, At: 50},
							{Type: EventTypeCloseFrame, Frame: 0, At: 50},
						},
						Name:     "main",
						ThreadID: 1,
						Type:     ProfileTypeEvented,
						Unit:     ValueUnitNanoseconds,
					},
					{
						EndValue: 100,
						Events: []Event{
							{Type: EventTypeOpenFrame, Frame: 1, At: 20},
							{Type: EventTypeCloseFrame, Frame: 1, At: 30},
						},
						Name:     "Thread 2",
						ThreadID: 2,
						Type:     ProfileTypeEvented,
						Unit:     ValueUnitNanoseconds,
					},
				},
				Shared: SharedData{Frames: []Frame{
					{File: "main.py", Line: 1, Name: "f"},
					{File: "main.py", Line: 5, Name: "g"},
				}},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := FromForest(test.forest, test.names, 100, 100)
			if diff := testutil.Diff(got, test.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}
