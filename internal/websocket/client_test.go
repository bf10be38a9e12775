package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// recorder is an engine.Handler that records transport events.
type recorder struct {
	mu       sync.Mutex
	messages []string
	failErr  error

	opened chan struct{}
	closed chan struct{}
	failed chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan struct{}),
		closed: make(chan struct{}),
		failed: make(chan struct{}),
	}
}

func (r *recorder) OnOpen()  { close(r.opened) }
func (r *recorder) OnClose() { close(r.closed) }

func (r *recorder) OnFail(err error) {
	r.mu.Lock()
	r.failErr = err
	r.mu.Unlock()
	close(r.failed)
}

func (r *recorder) OnMessage(text string) {
	r.mu.Lock()
	r.messages = append(r.messages, text)
	r.mu.Unlock()
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// echoServer upgrades every request and echoes text frames. A frame "binary"
// is answered with a binary frame.
func echoServer(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "binary" {
				mt = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestTransport() *Transport {
	return NewTransport(Config{
		HandshakeTimeout: 2 * time.Second,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func wait(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// TestTransportEcho tests sending and receiving text frames
func TestTransportEcho(t *testing.T) {
	t.Parallel()

	url := echoServer(t)
	tr := newTestTransport()
	rec := newRecorder()

	go tr.Run(context.Background(), url, rec)
	wait(t, rec.opened, "open")

	for _, msg := range []string{"3:::one", "binary", "3:::two"} {
		if err := tr.Send(msg); err != nil {
			t.Fatalf("Send(%q) error = %v", msg, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Messages()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	got := rec.Messages()
	if len(got) != 2 || got[0] != "3:::one" || got[1] != "3:::two" {
		t.Errorf("messages = %v, want text frames only", got)
	}

	if err := tr.Close("Ended by user"); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	wait(t, rec.closed, "close")
}

// TestTransportContextCancel tests that cancelling Run ends the connection
func TestTransportContextCancel(t *testing.T) {
	t.Parallel()

	url := echoServer(t)
	tr := newTestTransport()
	rec := newRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		tr.Run(ctx, url, rec)
		close(returned)
	}()
	wait(t, rec.opened, "open")

	cancel()
	wait(t, rec.closed, "close")
	wait(t, returned, "Run to return")

	if err := tr.Send("late"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() after close error = %v, want ErrNotConnected", err)
	}
}

// TestTransportDialFailure tests that a failed dial reports OnFail
func TestTransportDialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	defer srv.Close()

	tr := newTestTransport()
	rec := newRecorder()
	tr.Run(context.Background(), url, rec)

	select {
	case <-rec.failed:
	default:
		t.Fatal("OnFail was not called")
	}
	select {
	case <-rec.opened:
		t.Error("OnOpen called after failed dial")
	default:
	}
	if rec.failErr == nil {
		t.Error("OnFail error is nil")
	}
}

// TestTransportNotConnected tests Send and Close without a connection
func TestTransportNotConnected(t *testing.T) {
	t.Parallel()

	tr := newTestTransport()

	if err := tr.Send("3:::x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
	if err := tr.Close("bye"); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

// TestTransportDefaults tests config defaults
func TestTransportDefaults(t *testing.T) {
	t.Parallel()

	tr := NewTransport(Config{})

	if tr.dialer.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", tr.dialer.HandshakeTimeout)
	}
	if tr.writeTimeout != 10*time.Second {
		t.Errorf("writeTimeout = %v, want 10s", tr.writeTimeout)
	}
	if tr.dialer.ReadBufferSize != 1024 || tr.dialer.WriteBufferSize != 1024 {
		t.Errorf("buffer sizes = %d/%d, want 1024", tr.dialer.ReadBufferSize, tr.dialer.WriteBufferSize)
	}
	if tr.logger == nil {
		t.Error("logger is nil")
	}
}
