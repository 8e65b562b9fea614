package main

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/pprof/profile"
	"github.com/segmentio/kafka-go"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"

	"github.com/getsentry/rtprofile/internal/analyzer"
	"github.com/getsentry/rtprofile/internal/source"
	"github.com/getsentry/rtprofile/internal/speedscope"
	"github.com/getsentry/rtprofile/internal/testutil"
)

var (
	temporaryDirectory string
	fileBlobBucket     *blob.Bucket
)

var testLog = source.Log{
	Methods: []source.Method{
		{ID: 1, Name: "main_work", SourceFile: "example.py", SourceLine: 12},
		{ID: 2, Name: "expensive_function", SourceFile: "example.py", SourceLine: 4},
	},
	Threads: []source.LogThread{{ID: 1, Name: "main"}},
	Events: []source.LogEvent{
		{Action: source.EnterAction, ThreadID: 1, MethodID: 1, TimestampNS: 0},
		{Action: source.EnterAction, ThreadID: 1, MethodID: 2, TimestampNS: 10},
		{Action: source.ExitAction, ThreadID: 1, MethodID: 2, TimestampNS: 110},
		{Action: source.EnterAction, ThreadID: 1, MethodID: 2, TimestampNS: 160},
		{Action: source.ExitAction, ThreadID: 1, MethodID: 2, TimestampNS: 260},
		{Action: source.ExitAction, ThreadID: 1, MethodID: 1, TimestampNS: 270},
	},
}

func TestMain(m *testing.M) {
	var err error
	temporaryDirectory, err = os.MkdirTemp(os.TempDir(), "rtprofile-profiles-*")
	if err != nil {
		log.Fatalf("couldn't create a temporary directory: %s", err.Error())
	}

	fileBlobBucket, err = blob.OpenBucket(context.Background(), "file://localhost/"+temporaryDirectory)
	if err != nil {
		log.Fatalf("couldn't open a local filesystem bucket: %s", err.Error())
	}

	code := m.Run()

	if err := fileBlobBucket.Close(); err != nil {
		log.Printf("couldn't close the local filesystem bucket: %s", err.Error())
	}

	err = os.RemoveAll(temporaryDirectory)
	if err != nil {
		log.Printf("couldn't remove the temporary directory: %s", err.Error())
	}

	os.Exit(code)
}

type KafkaWriterMock struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (k *KafkaWriterMock) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.messages = append(k.messages, msgs...)
	return nil
}

func (k *KafkaWriterMock) Close() error {
	return nil
}

func newTestEnvironment(t *testing.T) (*environment, *KafkaWriterMock, http.Handler) {
	t.Helper()
	writer := &KafkaWriterMock{}
	env := &environment{
		config: ServiceConfig{
			Environment:      "test",
			RetentionDays:    30,
			MaxEventLogBytes: 1 << 20,
		},
		profilesBucket:  fileBlobBucket,
		functionsWriter: writer,
	}
	handler, err := env.newHandler()
	if err != nil {
		t.Fatal(err)
	}
	return env, writer, handler
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postTestProfile(t *testing.T, h http.Handler) string {
	t.Helper()
	body, err := json.Marshal(testLog)
	if err != nil {
		t.Fatal(err)
	}
	w := do(t, h, http.MethodPost, "/profiles", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, w.Code)
	}
	var response postProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response.ID == "" {
		t.Fatal("expected a profile id")
	}
	return response.ID
}

func TestPostAndReadProfile(t *testing.T) {
	_, writer, h := newTestEnvironment(t)
	id := postTestProfile(t, h)

	if len(writer.messages) != 1 || string(writer.messages[0].Key) != id {
		t.Fatalf("expected one functions message for %s, got %+v", id, writer.messages)
	}

	t.Run("functions", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/profiles/"+id+"/functions", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var functions []analyzer.FunctionMetrics
		if err := json.Unmarshal(w.Body.Bytes(), &functions); err != nil {
			t.Fatal(err)
		}
		if len(functions) != 2 {
			t.Fatalf("expected 2 functions, got %d", len(functions))
		}
		got := functions[0]
		if got.Function != "expensive_function" || got.Calls != 2 || got.SelfTimeNS != 200 {
			t.Fatalf("unexpected first function %+v", got)
		}
	})

	t.Run("call tree", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/profiles/"+id+"/call_tree", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var threads []struct {
			ThreadID uint64 `json:"thread_id"`
			Name     string `json:"name"`
			TotalNS  uint64 `json:"total_ns"`
			Roots    []struct {
				SelfNS   uint64            `json:"self_ns"`
				Percent  float64           `json:"percent"`
				Children []json.RawMessage `json:"children"`
			} `json:"roots"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &threads); err != nil {
			t.Fatal(err)
		}
		if len(threads) != 1 || threads[0].Name != "main" || threads[0].TotalNS != 270 {
			t.Fatalf("unexpected threads %+v", threads)
		}
		root := threads[0].Roots[0]
		if root.SelfNS != 70 || root.Percent != 100 || len(root.Children) != 2 {
			t.Fatalf("unexpected root %+v", root)
		}
	})

	t.Run("call tree of one thread", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/profiles/"+id+"/call_tree?thread_id=1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		w = do(t, h, http.MethodGet, "/profiles/"+id+"/call_tree?thread_id=2", nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
		w = do(t, h, http.MethodGet, "/profiles/"+id+"/call_tree?thread_id=main", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("speedscope", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/profiles/"+id+"/speedscope", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var o speedscope.Output
		if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
			t.Fatal(err)
		}
		if o.ProfileID != id || len(o.Profiles) != 1 || len(o.Profiles[0].Events) != 6 {
			t.Fatalf("unexpected speedscope document %+v", o)
		}
	})

	t.Run("pprof", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/profiles/"+id+"/pprof", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		p, err := profile.Parse(w.Body)
		if err != nil {
			t.Fatal(err)
		}
		if len(p.Sample) != 2 {
			t.Fatalf("expected one sample per call path, got %d", len(p.Sample))
		}
		if since := time.Since(time.Unix(0, p.TimeNanos)); since < 0 || since > time.Hour {
			t.Fatalf("expected a wall clock start time, got %d", p.TimeNanos)
		}
	})
}

func TestProfileErrors(t *testing.T) {
	_, _, h := newTestEnvironment(t)

	tests := []struct {
		name   string
		method string
		target string
		body   []byte
		status int
	}{
		{
			name:   "health",
			method: http.MethodGet,
			target: "/health",
			status: http.StatusNoContent,
		},
		{
			name:   "malformed event log",
			method: http.MethodPost,
			target: "/profiles",
			body:   []byte(`{"events": [`),
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown action",
			method: http.MethodPost,
			target: "/profiles",
			body:   []byte(`{"events": [{"action": "Jump", "thread_id": 1, "ts_ns": 1}]}`),
			status: http.StatusBadRequest,
		},
		{
			name:   "oversized event log",
			method: http.MethodPost,
			target: "/profiles",
			body:   append(bytes.Repeat([]byte(" "), 1<<20), `{"events": []}`...),
			status: http.StatusRequestEntityTooLarge,
		},
		{
			name:   "unknown profile",
			method: http.MethodGet,
			target: "/profiles/0000/functions",
			status: http.StatusNotFound,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := do(t, h, test.method, test.target, test.body)
			if w.Code != test.status {
				t.Fatalf("expected status %d, got %d", test.status, w.Code)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	env, _, h := newTestEnvironment(t)
	oldID := postTestProfile(t, h)
	newID := postTestProfile(t, h)

	old := time.Now().Add(-60 * 24 * time.Hour)
	if err := os.Chtimes(filepath.Join(temporaryDirectory, "profiles", oldID), old, old); err != nil {
		t.Fatal(err)
	}
	env.sweep(context.Background())

	if w := do(t, h, http.MethodGet, "/profiles/"+oldID+"/functions", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected the old profile to be deleted, got status %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/profiles/"+newID+"/functions", nil); w.Code != http.StatusOK {
		t.Fatalf("expected the new profile to be kept, got status %d", w.Code)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RTPROFILE_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("RTPROFILE_MAX_DEPTH", "16")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	want := ServiceConfig{
		Environment:         "development",
		LogLevel:            "info",
		Port:                "8080",
		BucketURL:           "mem://",
		RetentionDays:       30,
		KafkaBrokers:        []string{"a:9092", "b:9092"},
		FunctionsKafkaTopic: "profiles-functions",
		MaxDepth:            16,
		MaxEventLogBytes:    64 << 20,
	}
	if diff := testutil.Diff(cfg, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	t.Setenv("RTPROFILE_MAX_DEPTH", "-1")
	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected a negative depth to be rejected")
	}

	t.Setenv("RTPROFILE_MAX_DEPTH", "0")
	t.Setenv("RTPROFILE_MAX_EVENT_LOG_BYTES", "0")
	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected an empty event log limit to be rejected")
	}
}
