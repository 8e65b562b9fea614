package session

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/getsentry/rtprofile/internal/source"
	"github.com/getsentry/rtprofile/internal/testutil"
	"github.com/getsentry/rtprofile/internal/tracer"
)

func replay(t *testing.T) *tracer.Result {
	t.Helper()
	l := source.Log{
		Methods: []source.Method{
			{ID: 1, Name: "f", SourceFile: "main.py", SourceLine: 1},
			{ID: 2, Name: "g", SourceFile: "main.py", SourceLine: 5},
		},
		Threads: []source.LogThread{{ID: 4, Name: "main"}},
		Events: []source.LogEvent{
			{Action: source.EnterAction, ThreadID: 4, MethodID: 1, TimestampNS: 10},
			{Action: source.EnterAction, ThreadID: 4, MethodID: 2, TimestampNS: 40},
			{Action: source.ExitAction, ThreadID: 4, MethodID: 2, TimestampNS: 60},
			{Action: source.ExitAction, ThreadID: 4, MethodID: 1, TimestampNS: 60},
			{Action: source.EnterAction, ThreadID: 5, MethodID: 2, TimestampNS: 20},
			{Action: source.ExitAction, ThreadID: 5, MethodID: 2, TimestampNS: 30},
		},
	}
	r, err := source.Profile(context.Background(), l, tracer.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNew(t *testing.T) {
	r := replay(t)
	startedAt := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	s := New(r, startedAt)

	if len(s.ID) != 32 {
		t.Fatalf("unexpected id %q", s.ID)
	}
	if s.DurationNS != 60 || !s.StartedAt.Equal(startedAt) {
		t.Fatalf("unexpected session bounds: %d %v", s.DurationNS, s.StartedAt)
	}
	if len(s.Threads) != 2 || s.Threads[0].ID != 4 || s.Threads[0].Name != "main" {
		t.Fatalf("unexpected threads: %+v", s.Threads)
	}
	if len(s.Functions) != 2 || s.Functions[0].Function != "f" {
		t.Fatalf("unexpected functions: %+v", s.Functions)
	}
	if diff := testutil.Diff(s.ThreadNames(), map[uint64]string{4: "main"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if s.StoragePath() != "profiles/"+s.ID {
		t.Fatalf("unexpected storage path %s", s.StoragePath())
	}
}

func TestUnmarshalRelinks(t *testing.T) {
	s := New(replay(t), time.Now())
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Session
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if diff := testutil.Diff(decoded.Forest(), s.Forest()); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	root := decoded.Threads[0].Calls[0]
	child := root.Children[0]
	if child.Parent() != root {
		t.Fatal("decoded calls should be linked to their parent")
	}
	if child.SelfNS() != 20 || root.SelfNS() != 30 {
		t.Fatalf("unexpected times after decoding: %d %d", root.SelfNS(), child.SelfNS())
	}
}
