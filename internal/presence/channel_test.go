package presence

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"usergrid/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder collects subscriber notifications for assertions.
type recorder struct {
	mu           sync.Mutex
	deltas       []domain.PresenceDelta
	resyncs      int
	unavailables int
	deltaCh      chan domain.PresenceDelta
	resyncCh     chan struct{}
	termCh       chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		deltaCh:  make(chan domain.PresenceDelta, 16),
		resyncCh: make(chan struct{}, 16),
		termCh:   make(chan struct{}, 16),
	}
}

func (r *recorder) OnPresenceDelta(d domain.PresenceDelta) {
	r.mu.Lock()
	r.deltas = append(r.deltas, d)
	r.mu.Unlock()
	r.deltaCh <- d
}

func (r *recorder) OnResync() {
	r.mu.Lock()
	r.resyncs++
	r.mu.Unlock()
	r.resyncCh <- struct{}{}
}

func (r *recorder) OnUnavailable() {
	r.mu.Lock()
	r.unavailables++
	r.mu.Unlock()
	r.termCh <- struct{}{}
}

// fakeConn feeds scripted frames to the read loop.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b, ok := <-f.frames:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, b, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestChannel_DeliversDeltasDiscardsGarbage(t *testing.T) {
	fc := newFakeConn()
	ch := NewChannel(Options{URL: "ws://test/ws/user-status/"}, zap.NewNop())
	ch.dial = func(ctx context.Context, url string) (conn, error) { return fc, nil }

	rec := newRecorder()
	ch.Subscribe(rec)
	require.NoError(t, ch.Connect())
	defer ch.Close()

	fc.frames <- []byte(`{"type":"user_status","user_id":"u1","is_online":true}`)
	fc.frames <- []byte(`this is not json`)
	fc.frames <- []byte(`{"type":"heartbeat"}`)
	fc.frames <- []byte(`{"type":"user_status","user_id":"u2","is_online":false}`)

	d1 := waitFor(t, rec.deltaCh, "first delta")
	require.Equal(t, domain.PresenceDelta{UserID: "u1", IsOnline: true}, d1)
	d2 := waitFor(t, rec.deltaCh, "second delta")
	require.Equal(t, domain.PresenceDelta{UserID: "u2", IsOnline: false}, d2)

	// garbage and unknown types produced no extra notifications
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.deltas, 2)
	require.Zero(t, rec.unavailables)
}

func TestChannel_ReconnectEmitsResyncAndResetsAttempts(t *testing.T) {
	var mu sync.Mutex
	var conns []*fakeConn
	ch := NewChannel(Options{
		URL:         "ws://test/ws/user-status/",
		BaseDelay:   time.Millisecond,
		MaxAttempts: 5,
	}, zap.NewNop())
	ch.dial = func(ctx context.Context, url string) (conn, error) {
		mu.Lock()
		defer mu.Unlock()
		fc := newFakeConn()
		conns = append(conns, fc)
		return fc, nil
	}

	rec := newRecorder()
	ch.Subscribe(rec)
	require.NoError(t, ch.Connect())
	defer ch.Close()

	fc := func(i int) *fakeConn {
		mu.Lock()
		defer mu.Unlock()
		return conns[i]
	}

	// first connection delivers, then dies
	fc(0).frames <- []byte(`{"type":"user_status","user_id":"u1","is_online":true}`)
	waitFor(t, rec.deltaCh, "delta on first connection")
	_ = fc(0).Close()

	waitFor(t, rec.resyncCh, "resync after reconnect")

	// attempts reset on the successful reopen
	ch.mu.Lock()
	require.Zero(t, ch.attempts)
	ch.mu.Unlock()

	// the reopened connection still delivers
	fc(1).frames <- []byte(`{"type":"user_status","user_id":"u2","is_online":true}`)
	waitFor(t, rec.deltaCh, "delta on second connection")
}

func TestChannel_ExhaustedAttemptsAreTerminal(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	ch := NewChannel(Options{
		URL:         "ws://test/ws/user-status/",
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxAttempts: 3,
	}, zap.NewNop())
	ch.dial = func(ctx context.Context, url string) (conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	rec := newRecorder()
	ch.Subscribe(rec)
	require.NoError(t, ch.Connect())
	defer ch.Close()

	waitFor(t, rec.termCh, "terminal notification")
	require.True(t, ch.Unavailable())

	mu.Lock()
	dialsAtTerm := dials
	mu.Unlock()
	// initial dial + MaxAttempts retries, nothing scheduled beyond that
	require.Equal(t, 4, dialsAtTerm)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, dialsAtTerm, dials)
	mu.Unlock()

	rec.mu.Lock()
	require.Equal(t, 1, rec.unavailables)
	rec.mu.Unlock()
}

func TestChannel_CloseCancelsPendingReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	ch := NewChannel(Options{
		URL:         "ws://test/ws/user-status/",
		BaseDelay:   time.Hour, // a retry would hang the test if the timer is not cancelled
		MaxAttempts: 10,
	}, zap.NewNop())
	ch.dial = func(ctx context.Context, url string) (conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	require.NoError(t, ch.Connect())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 1
	}, 2*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = ch.Close()
		close(done)
	}()
	waitFor(t, done, "Close to return")

	// idempotent
	require.NoError(t, ch.Close())

	mu.Lock()
	require.Equal(t, 1, dials)
	mu.Unlock()
}

func TestChannel_AgainstRealWebsocketServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_status","user_id":"u5","is_online":true}`))
		// hold the connection open until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch := NewChannel(Options{URL: url}, zap.NewNop())
	rec := newRecorder()
	ch.Subscribe(rec)
	require.NoError(t, ch.Connect())
	defer ch.Close()

	d := waitFor(t, rec.deltaCh, "delta over real websocket")
	require.Equal(t, "u5", d.UserID)
	require.True(t, d.IsOnline)
}

func TestFeedURL(t *testing.T) {
	cases := []struct {
		origin  string
		apiPort int
		want    string
	}{
		{"http://localhost:3000", 8000, "ws://localhost:8000/ws/user-status/"},
		{"https://console.example.com", 0, "wss://console.example.com/ws/user-status/"},
		{"http://10.0.0.5:8080", 0, "ws://10.0.0.5:8080/ws/user-status/"},
	}
	for _, tc := range cases {
		got, err := FeedURL(tc.origin, tc.apiPort)
		require.NoError(t, err, tc.origin)
		require.Equal(t, tc.want, got)
	}

	_, err := FeedURL("ftp://example.com", 0)
	require.Error(t, err)
}
