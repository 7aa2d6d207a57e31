package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-chatroom/internal/bridge"
	"github.com/npezzotti/go-chatroom/internal/config"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/feed"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/presence"
	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/server"
	"github.com/npezzotti/go-chatroom/internal/stats"
	"github.com/npezzotti/go-chatroom/internal/testutil"
	"github.com/npezzotti/go-chatroom/internal/types"
)

var (
	alice = database.Account{Id: 1, Username: "alice"}
	bob   = database.Account{Id: 2, Username: "bob"}
)

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:     "localhost:8080",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

func newTestApp(t *testing.T, db *database.MockGoChatRepository) *GoChatApp {
	t.Helper()
	return NewGoChatApp(testutil.TestLogger(t), nil, db, kv.NewMemoryStore(), nil, testConfig())
}

// newChatApp returns an app backed by a running chat server.
func newChatApp(t *testing.T, db *database.MockGoChatRepository) *GoChatApp {
	t.Helper()

	logger := testutil.TestLogger(t)
	store := kv.NewMemoryStore()
	su := stats.NewPermissiveMock()

	cs, err := server.NewChatServer(logger, server.Options{
		KV:       store,
		Presence: presence.NewStore(store),
		Rooms:    rooms.NewIndex(store, database.NewUserDirectory(db)),
		Feed:     feed.New(store),
		Store:    db,
		Bridge:   bridge.New("instance-a", "", bridge.NewMemoryTransport(), logger, su),
	}, su)
	require.NoError(t, err)

	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	return NewGoChatApp(logger, cs, db, store, nil, testConfig())
}

// sessionCookie returns a valid session cookie for the user.
func sessionCookie(t *testing.T, app *GoChatApp, userId types.ID) *http.Cookie {
	t.Helper()
	token, err := app.createJwtForSession(types.User{Id: userId}, defaultJwtExpiration)
	require.NoError(t, err)
	return createJwtCookie(token, defaultJwtExpiration)
}

// do sends a request through the full handler chain. A zero userId sends
// the request without a session.
func do(t *testing.T, app *GoChatApp, method, target string, body any, userId types.ID) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(v)
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		r = bytes.NewBuffer(b)
	}

	req := httptest.NewRequest(method, target, r)
	if userId != "" {
		req.AddCookie(sessionCookie(t, app, userId))
	}

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "failed to decode response")
	return v
}

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
