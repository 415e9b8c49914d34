package manager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"inferd/internal/supervisor"
	"inferd/pkg/types"
)

func streamBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	_, _ = w.Write([]byte(`{"content":"Hello"}` + "\n"))
	_, _ = w.Write([]byte(`{"content":" world"}` + "\n"))
	_, _ = w.Write([]byte(`{"stop":true}` + "\n"))
}

func TestStream_Healthy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		streamBody(w)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	proc := &fakeProc{running: true, state: supervisor.StateReady}
	m := newTestManager(t, proc, ts.URL)

	st, err := m.Stream(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, types.GenerateParams{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer st.Close()
	var out strings.Builder
	for st.Next() {
		out.WriteString(st.Fragment())
	}
	if err := st.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if out.String() != "Hello world" {
		t.Fatalf("got %q", out.String())
	}
}

func TestStream_WarmupEmitsNoticeThenDelegates(t *testing.T) {
	// Health answers 503 twice, then 200: the stream must surface the
	// warm-up notice, re-probe, and continue with real output.
	var healthCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if healthCalls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		streamBody(w)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	proc := &fakeProc{running: true, state: supervisor.StateInitializing}
	m := newTestManager(t, proc, ts.URL)

	st, err := m.Stream(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, types.GenerateParams{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer st.Close()

	var frags []string
	for st.Next() {
		frags = append(frags, st.Fragment())
	}
	if err := st.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected notice plus output, got %v", frags)
	}
	if frags[0] != warmupNotice {
		t.Fatalf("first fragment must be the warm-up notice, got %q", frags[0])
	}
	if got := strings.Join(frags[1:], ""); got != "Hello world" {
		t.Fatalf("delegated output = %q", got)
	}
}

func TestStream_NotRunningFailsFast(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	proc := &fakeProc{}
	m := newTestManager(t, proc, ts.URL)

	start := time.Now()
	_, err := m.Stream(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, types.GenerateParams{})
	if !IsNotRunning(err) {
		t.Fatalf("want not-running, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("must fail fast, took %s", time.Since(start))
	}
}

func TestStream_WarmupAbortsWhenServerDies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	proc := &fakeProc{running: true, state: supervisor.StateInitializing}
	m := newTestManager(t, proc, ts.URL)

	st, err := m.Stream(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, types.GenerateParams{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer st.Close()

	if !st.Next() {
		t.Fatalf("expected the warm-up notice first")
	}
	ts.CloseClientConnections()
	ts.Close()
	for st.Next() {
	}
	if st.Err() == nil {
		t.Fatalf("a server that never becomes ready must surface an error")
	}
}
