// Package session holds the snapshot of a finished profiling session, in
// the form it is stored and served.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/getsentry/rtprofile/internal/analyzer"
	"github.com/getsentry/rtprofile/internal/calltree"
	"github.com/getsentry/rtprofile/internal/tracer"
)

type (
	Thread struct {
		ID    uint64                 `json:"id"`
		Name  string                 `json:"name,omitempty"`
		Calls []*calltree.CallRecord `json:"calls"`
	}

	Session struct {
		ID         string                     `json:"profile_id"`
		StartedAt  time.Time                  `json:"started_at"`
		StartNS    uint64                     `json:"start_ns"`
		DurationNS uint64                     `json:"duration_ns"`
		Threads    []Thread                   `json:"threads"`
		Functions  []analyzer.FunctionMetrics `json:"functions"`
		Mismatched uint64                     `json:"mismatched_returns,omitempty"`
	}
)

// New snapshots a stopped session. startedAt is the wall clock time the
// session started at.
func New(r *tracer.Result, startedAt time.Time) Session {
	s := Session{
		ID:         strings.ReplaceAll(uuid.New().String(), "-", ""),
		StartedAt:  startedAt.UTC(),
		StartNS:    r.StartedNS,
		DurationNS: r.DurationNS(),
		Threads:    make([]Thread, 0, len(r.Forest)),
		Functions:  r.Functions().Metrics(),
		Mismatched: r.Mismatched,
	}
	for _, tid := range r.Forest.Threads() {
		s.Threads = append(s.Threads, Thread{
			ID:    tid,
			Name:  r.ThreadNames[tid],
			Calls: r.Forest[tid],
		})
	}
	return s
}

// StoragePath returns the object name of a session.
func StoragePath(id string) string {
	return fmt.Sprintf("profiles/%s", id)
}

func (s Session) StoragePath() string {
	return StoragePath(s.ID)
}

// UnmarshalJSON restores the parent links of the decoded calls.
func (s *Session) UnmarshalJSON(b []byte) error {
	type alias Session
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*s = Session(a)
	for _, t := range s.Threads {
		for _, c := range t.Calls {
			c.Relink()
		}
	}
	return nil
}

func (s Session) Forest() calltree.Forest {
	f := make(calltree.Forest, len(s.Threads))
	for _, t := range s.Threads {
		f[t.ID] = t.Calls
	}
	return f
}

func (s Session) ThreadNames() map[uint64]string {
	names := make(map[uint64]string, len(s.Threads))
	for _, t := range s.Threads {
		if t.Name != "" {
			names[t.ID] = t.Name
		}
	}
	return names
}
