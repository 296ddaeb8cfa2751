package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readerPort replays fixed input and captures writes.
type readerPort struct {
	io.Reader
	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error
	short    bool
	closed   bool
}

func newReaderPort(input string) *readerPort {
	return &readerPort{Reader: strings.NewReader(input)}
}

func (p *readerPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.short {
		return len(b) - 1, nil
	}
	return p.written.Write(b)
}

func (p *readerPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	host, device := NewPipePort()
	mux := NewSerialMux(host)
	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	_, err := device.Write([]byte(`{"type":"gaze","ts":1}` + "\n" + `{"type":"gaze","ts":2}` + "\n"))
	require.NoError(t, err)

	assert.Equal(t, `{"type":"gaze","ts":1}`, recv(t, ch1))
	assert.Equal(t, `{"type":"gaze","ts":2}`, recv(t, ch1))
	assert.Equal(t, `{"type":"gaze","ts":1}`, recv(t, ch2))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, mux.Close())
	_ = device.Close()
}

func TestSerialMux_DropsForFullSubscribers(t *testing.T) {
	mux := NewSerialMux(newReaderPort("a\nb\nc\n"))
	mux.bufferSize = 1
	id, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))

	assert.Equal(t, "a", recv(t, ch))
	assert.Equal(t, uint64(2), mux.Dropped(id))
	assert.Equal(t, uint64(0), mux.Dropped("unknown"))
}

func TestSerialMux_Unsubscribe(t *testing.T) {
	mux := NewSerialMux(newReaderPort(""))
	id, ch := mux.Subscribe()

	mux.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// Second unsubscribe and unknown IDs are ignored.
	mux.Unsubscribe(id)
	mux.Unsubscribe("nope")
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := newReaderPort("")
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand(`{"cmd":"clock"}`))
	require.NoError(t, mux.SendCommand("raw\n"))
	assert.Equal(t, "{\"cmd\":\"clock\"}\nraw\n", port.written.String())

	port.short = true
	assert.ErrorIs(t, mux.SendCommand("x"), ErrWriteFailed)

	boom := errors.New("unplugged")
	port.writeErr = boom
	assert.ErrorIs(t, mux.SendCommand("x"), boom)
}

func TestSerialMux_Close(t *testing.T) {
	port := newReaderPort("")
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.closed)

	// Subscribing after close yields a closed channel.
	_, late := mux.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	assert.NoError(t, mux.Close())
}

func TestAttachAdminRoutes_SendCommand(t *testing.T) {
	port := newReaderPort("")
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name   string
		method string
		form   url.Values
		want   int
	}{
		{"valid", http.MethodPost, url.Values{"command": {`{"cmd":"clock"}`}}, http.StatusOK},
		{"empty", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/debug/send-command-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.RemoteAddr = "127.0.0.1:12345"
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Contains(t, port.written.String(), `{"cmd":"clock"}`)
	assert.Contains(t, port.written.String(), "\n")

	req := httptest.NewRequest(http.MethodGet, "/debug/send-command", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource")
}

func TestAttachAdminRoutes_Tail(t *testing.T) {
	mux := NewSerialMux(newReaderPort(""))
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)
	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r := bufio.NewReader(resp.Body)
	ping, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)
	_, _ = r.ReadString('\n')

	mux.broadcast(`{"type":"gaze"}`)
	data, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"gaze\"}\n", data)
}
