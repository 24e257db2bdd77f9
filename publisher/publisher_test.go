package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// countingTransport fails every request and counts attempts, so a test can
// prove a code path never touched the network.
type countingTransport struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, errors.New("network access not allowed in this test")
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingGit captures git invocations instead of running them.
type recordingGit struct {
	mu    sync.Mutex
	calls [][]string
	dirs  []string
	fail  string
}

func (g *recordingGit) Run(_ context.Context, dir string, args ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, append([]string(nil), args...))
	g.dirs = append(g.dirs, dir)
	if g.fail != "" && len(args) > 0 && args[0] == g.fail {
		return errors.New("git " + g.fail + " failed")
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }

type testEnv struct {
	pub       *Publisher
	transport *countingTransport
	git       *recordingGit
}

func newOfflinePublisher(t *testing.T, cfg Config, creds Credentials) *testEnv {
	t.Helper()
	env := &testEnv{transport: &countingTransport{}, git: &recordingGit{}}
	env.pub = New(cfg, creds,
		WithHTTPClient(&http.Client{Transport: env.transport}),
		WithGitRunner(env.git),
		WithLogger(quietLogger()),
		WithClock(fixedNow),
	)
	return env
}

func hasSimulatedMarker(res Result) bool {
	return strings.HasPrefix(res.ID, "dry-") || strings.HasPrefix(res.URL, simulatedSiteURL+"/")
}
