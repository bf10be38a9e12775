package e2e_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/luciancaetano/kephasio/internal/siotest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newServer starts a fake Socket.IO server and returns it with the ws:// URL
// clients connect to.
func newServer(t *testing.T, cfg siotest.Config) (*siotest.Server, string) {
	t.Helper()

	cfg.Logger = quietLogger()
	s := siotest.New(cfg)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}
