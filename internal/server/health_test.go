package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fahammohmd/pickme-go/internal/index"
)

// fakePinger is a canned Pinger for readiness tests.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }
func (f *fakePinger) Name() string                   { return f.name }

func doReady(t *testing.T, s *Server) (*httptest.ResponseRecorder, readyResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	var resp readyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ready response: %v", err)
	}
	return rec, resp
}

func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{answer: okAnswer()}, nil)
	rec, resp := doReady(t, s)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !resp.Ready {
		t.Error("expected ready=true with no pingers")
	}
}

func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{answer: okAnswer()}, &Config{
		Pingers: []Pinger{
			&fakePinger{name: "ollama"},
			&fakePinger{name: "index"},
		},
	})
	rec, resp := doReady(t, s)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandleReady_DependencyDown(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{answer: okAnswer()}, &Config{
		Pingers: []Pinger{
			&fakePinger{name: "ollama"},
			&fakePinger{name: "index", err: errors.New("index not ready (state BUILDING)")},
		},
	})
	rec, resp := doReady(t, s)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if resp.Ready {
		t.Error("expected ready=false")
	}
	if len(resp.Checks) != 2 || resp.Checks[1].OK || resp.Checks[1].Error == "" {
		t.Errorf("unexpected checks %+v", resp.Checks)
	}
}

func TestMultiPinger(t *testing.T) {
	t.Parallel()

	healthy := NewMultiPinger(&fakePinger{name: "a"}, &fakePinger{name: "b"})
	if err := healthy.Ping(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	down := NewMultiPinger(
		&fakePinger{name: "a"},
		&fakePinger{name: "b", err: errors.New("refused")},
	)
	err := down.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "b: refused" {
		t.Errorf("error should name the failing dependency, got %q", got)
	}
}

func TestIndexPinger(t *testing.T) {
	t.Parallel()

	ready := NewIndexPinger(&fakeIndexStatus{state: index.StateReady})
	if err := ready.Ping(context.Background()); err != nil {
		t.Errorf("ready index: expected nil, got %v", err)
	}

	building := NewIndexPinger(&fakeIndexStatus{state: index.StateBuilding})
	if err := building.Ping(context.Background()); err == nil {
		t.Error("building index: expected error")
	}
}

func TestHTTPPinger(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	if err := NewHTTPPinger("ollama", up.URL).Ping(context.Background()); err != nil {
		t.Errorf("expected nil for 200 response, got %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	if err := NewHTTPPinger("ollama", down.URL).Ping(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}

	if err := NewHTTPPinger("ollama", "http://127.0.0.1:1").Ping(context.Background()); err == nil {
		t.Error("expected error for unreachable endpoint")
	}
}
