package llama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/pkg/types"
)

func defaultGenParams() types.GenerateParams { return types.GenerateParams{} }

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	return NewClient(ts.URL, time.Second, zerolog.Nop())
}

func TestComplete_Unary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if s, _ := body["stream"].(bool); s {
			t.Errorf("unary call must send stream=false")
		}
		if _, ok := body["prompt"].(string); !ok {
			t.Errorf("prompt missing from payload")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"content": "full text"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	got, err := newTestClient(t, ts).Complete(context.Background(), "p", MergeParams(defaultGenParams()))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "full text" {
		t.Fatalf("got %q", got)
	}
}

func TestComplete_NonOKCarriesBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slot unavailable", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, err := newTestClient(t, ts).Complete(context.Background(), "p", MergeParams(defaultGenParams()))
	if err == nil {
		t.Fatalf("expected error on 500")
	}
	if !strings.Contains(err.Error(), "slot unavailable") {
		t.Fatalf("error must carry the response body, got: %v", err)
	}
	if status, ok := IsHTTPStatus(err); !ok || status != http.StatusInternalServerError {
		t.Fatalf("expected http status error 500, got %v", err)
	}
}

func TestProbe_Classification(t *testing.T) {
	cases := []struct {
		name       string
		healthCode int
		wantOK     bool
		wantStatus string
	}{
		{"ok", http.StatusOK, true, StatusRunning},
		{"loading", http.StatusServiceUnavailable, true, StatusInitializing},
		{"teapot", http.StatusTeapot, false, StatusUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.healthCode)
			})
			mux.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			})
			ts := httptest.NewServer(mux)
			defer ts.Close()

			res := newTestClient(t, ts).Probe(context.Background())
			if res.Success != c.wantOK || res.Status != c.wantStatus {
				t.Fatalf("got %+v, want success=%v status=%s", res, c.wantOK, c.wantStatus)
			}
		})
	}
}

func TestProbe_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close() // refuse all connections

	res := newTestClient(t, ts).Probe(context.Background())
	if res.Success {
		t.Fatalf("connection failure must not be a successful probe: %+v", res)
	}
	if res.Status != StatusUnavailable {
		t.Fatalf("got status %q", res.Status)
	}
}

func TestProbe_ModelEndpointFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound) // this build has no /health
	})
	mux.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"n_ctx": 4096})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	res := newTestClient(t, ts).Probe(context.Background())
	if !res.Success || res.Status != StatusRunning {
		t.Fatalf("fallback probe must succeed, got %+v", res)
	}
}

func TestPingWithRetry(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	if !newTestClient(t, ts).PingWithRetry(context.Background(), 5, 10*time.Millisecond) {
		t.Fatalf("expected ping to succeed on the 503 answer")
	}
}

func TestPingWithRetry_Exhausted(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	if newTestClient(t, ts).PingWithRetry(context.Background(), 2, time.Millisecond) {
		t.Fatalf("expected ping to fail after exhausting retries")
	}
}

func TestModelInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{
			"n_ctx": 8192, "n_layer": 32, "n_embd": 4096, "n_vocab": 32000,
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	info, err := newTestClient(t, ts).ModelInfo(context.Background())
	if err != nil {
		t.Fatalf("ModelInfo: %v", err)
	}
	if info.ContextLength != 8192 || info.LayerCount != 32 || info.EmbeddingSize != 4096 || info.VocabSize != 32000 {
		t.Fatalf("unexpected metadata: %+v", info)
	}
}
