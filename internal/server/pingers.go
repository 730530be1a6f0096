package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fahammohmd/pickme-go/internal/index"
)

// IndexPinger reports readiness of the document index: the server can only
// answer questions once the index manager has reached READY.
type IndexPinger struct {
	// status is the index lifecycle view to probe.
	status IndexStatus
}

// NewIndexPinger constructs an IndexPinger over the given index status view.
func NewIndexPinger(status IndexStatus) *IndexPinger {
	return &IndexPinger{status: status}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping returns nil when the index is READY and a descriptive error for any
// other lifecycle state.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if state := p.status.State(); state != index.StateReady {
		return fmt.Errorf("index not ready (state %s)", state)
	}
	return nil
}

// HTTPPinger probes an HTTP dependency with a GET request to its base URL.
// It is used for backends like Ollama whose root endpoint answers 200 when
// the service is up, without consuming any model tokens.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses (e.g. "ollama").
	name string
	// url is the endpoint probed with a GET request.
	url string
	// client is the HTTP client used for probes.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for the given dependency name and URL.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{name: name, url: url, client: &http.Client{}}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues a GET request to the configured URL and returns nil for any
// 2xx response.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
