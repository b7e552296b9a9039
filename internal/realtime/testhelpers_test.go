package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/camayank/clientportal-realtime/internal/domain"
)

// newTestConnPair returns the server and client halves of a real WebSocket
// connection backed by an httptest server.
func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

// newTestConn wraps the server half of a fresh pair in a Conn and starts its
// read pump so pong handling works. The client half is returned for
// assertions.
func newTestConn(t *testing.T, identity domain.Identity) (*Conn, *ws.Conn) {
	t.Helper()
	serverWS, clientWS := newTestConnPair(t)
	conn := NewConn(serverWS, identity)
	go conn.ReadLoop(nil)
	t.Cleanup(func() { conn.Close("test cleanup") })
	return conn, clientWS
}

// readMessage reads one frame from the client side and decodes the envelope.
func readMessage(t *testing.T, client *ws.Conn) domain.Message {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// expectNoMessage asserts that nothing arrives on the client side within the
// given window.
func expectNoMessage(t *testing.T, client *ws.Conn, window time.Duration) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(window)))
	_, _, err := client.ReadMessage()
	require.Error(t, err, "expected no message, but one arrived")
}

// websocketIsCloseError reports whether err is a close-frame error.
func websocketIsCloseError(err error) bool {
	var closeErr *ws.CloseError
	return errors.As(err, &closeErr)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(cond func() bool) bool {
	for i := 0; i < 200; i++ {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// fakeProjectDirectory is an in-memory domain.ProjectDirectory.
type fakeProjectDirectory struct {
	mu       sync.Mutex
	projects map[int64]domain.ProjectMembership
	err      error
	calls    int
}

func newFakeProjectDirectory() *fakeProjectDirectory {
	return &fakeProjectDirectory{projects: make(map[int64]domain.ProjectMembership)}
}

func (f *fakeProjectDirectory) add(m domain.ProjectMembership) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[m.ProjectID] = m
}

func (f *fakeProjectDirectory) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProjectDirectory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProjectDirectory) ProjectMembers(_ context.Context, projectID int64) (domain.ProjectMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.ProjectMembership{}, f.err
	}
	m, ok := f.projects[projectID]
	if !ok {
		return domain.ProjectMembership{}, domain.ErrProjectNotFound
	}
	return m, nil
}
