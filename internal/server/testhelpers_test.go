package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/camayank/clientportal-realtime/internal/config"
	"github.com/camayank/clientportal-realtime/internal/domain"
	"github.com/camayank/clientportal-realtime/internal/realtime"
)

const testSessionSecret = "test-secret-0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "test",
		Port:                 "0",
		SessionSecret:        testSessionSecret,
		SessionCookieName:    "portal_session",
		ExcludedSubprotocols: []string{"vite-hmr"},
		MaxConnections:       100,
		ConnectionsPerSecond: 1000,
		ConnectionBurst:      1000,
	}
}

// fakeSessionStore is an in-memory domain.SessionStore.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.UserID
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]domain.UserID)}
}

func (f *fakeSessionStore) add(token string, userID domain.UserID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[token] = userID
}

func (f *fakeSessionStore) ResolveSession(_ context.Context, token string) (domain.UserID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.sessions[token]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	return userID, nil
}

// fakeUserDirectory is an in-memory domain.UserDirectory.
type fakeUserDirectory struct {
	mu    sync.Mutex
	users map[domain.UserID]domain.Identity
}

func newFakeUserDirectory() *fakeUserDirectory {
	return &fakeUserDirectory{users: make(map[domain.UserID]domain.Identity)}
}

func (f *fakeUserDirectory) add(identity domain.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[identity.UserID] = identity
}

func (f *fakeUserDirectory) LookupUser(_ context.Context, userID domain.UserID) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.users[userID]
	if !ok {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	return identity, nil
}

// fakeProjectDirectory answers every lookup with "not found"; the handshake
// path never touches projects.
type fakeProjectDirectory struct{}

func (fakeProjectDirectory) ProjectMembers(context.Context, int64) (domain.ProjectMembership, error) {
	return domain.ProjectMembership{}, domain.ErrProjectNotFound
}

type fakePostgresChecker struct{ err error }

func (f fakePostgresChecker) Ping(context.Context) error { return f.err }

type fakeRedisChecker struct{ err error }

func (f fakeRedisChecker) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

// testHarness bundles a running server with the fakes behind it.
type testHarness struct {
	srv      *Server
	ts       *httptest.Server
	registry *realtime.Registry
	sessions *fakeSessionStore
	users    *fakeUserDirectory
	cfg      *config.Config
}

func newTestHarness(t *testing.T, cfg *config.Config) *testHarness {
	t.Helper()

	sessionStore := newFakeSessionStore()
	users := newFakeUserDirectory()
	registry := realtime.NewRegistry()

	clock := clockwork.NewRealClock()
	broadcaster := realtime.NewBroadcaster(registry, fakeProjectDirectory{})
	dispatcher := realtime.NewDispatcher(broadcaster, clock)
	auth := NewAuthenticator(cfg.SessionSecret, cfg.SessionCookieName, sessionStore, users, cfg.ExcludedSubprotocols)

	srv := NewServer(cfg, clock, registry, dispatcher, auth, fakePostgresChecker{}, fakeRedisChecker{})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		registry.CloseAll("test cleanup")
		ts.Close()
	})

	return &testHarness{
		srv:      srv,
		ts:       ts,
		registry: registry,
		sessions: sessionStore,
		users:    users,
		cfg:      cfg,
	}
}

// grantSession provisions a session + user pair and returns the encoded
// session cookie a browser would present.
func (h *testHarness) grantSession(t *testing.T, token string, identity domain.Identity) *http.Cookie {
	t.Helper()
	h.sessions.add(token, identity.UserID)
	h.users.add(identity)
	return encodeSessionCookie(t, h.cfg, token)
}

// encodeSessionCookie builds the signed cookie the portal would have set.
func encodeSessionCookie(t *testing.T, cfg *config.Config, token string) *http.Cookie {
	t.Helper()
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	session, err := store.Get(r, cfg.SessionCookieName)
	require.NoError(t, err)
	session.Values["token"] = token
	require.NoError(t, session.Save(r, w))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func (h *testHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
}

// dial attempts the WebSocket handshake with the given cookie and optional
// sub-protocols.
func (h *testHarness) dial(cookie *http.Cookie, subprotocols ...string) (*ws.Conn, *http.Response, error) {
	dialer := ws.Dialer{Subprotocols: subprotocols}
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.String())
	}
	return dialer.Dial(h.wsURL(), header)
}

// readNotification reads one frame and decodes it as a notification.
func readNotification(t *testing.T, conn *ws.Conn) domain.NotificationEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, domain.MessageNotification, msg.Type)

	var note domain.NotificationEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &note))
	return note
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
