package stream

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/convostream/pkg/testutil"
	"github.com/AltairaLabs/convostream/runtime/auth"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// fakeService is a scripted stream service. Each accepted channel is handed
// to the test through conns.
type fakeService struct {
	srv   *httptest.Server
	conns chan *serverConn
}

type serverConn struct {
	t       *testing.T
	ws      *websocket.Conn
	req     *http.Request
	prompts chan string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	fs := &fakeService{conns: make(chan *serverConn, 4)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		sc := &serverConn{t: t, ws: ws, req: r, prompts: make(chan string, 8)}
		fs.conns <- sc
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			sc.prompts <- string(data)
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

// stalledService accepts TCP connections and never answers the upgrade.
func stalledService(t *testing.T) Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				_ = c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, c)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return Config{
		StreamURL:   "ws://" + ln.Addr().String() + "/ws",
		DialTimeout: 10 * time.Second,
	}
}

func (fs *fakeService) config() Config {
	return Config{
		StreamURL:   "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws",
		DialTimeout: 2 * time.Second,
	}
}

func (fs *fakeService) accept() *serverConn {
	select {
	case sc := <-fs.conns:
		return sc
	case <-time.After(2 * time.Second):
		panic("no channel accepted")
	}
}

func (sc *serverConn) prompt() string {
	sc.t.Helper()
	select {
	case p := <-sc.prompts:
		return p
	case <-time.After(2 * time.Second):
		sc.t.Fatal("no prompt received")
		return ""
	}
}

func (sc *serverConn) send(msgs ...string) {
	sc.t.Helper()
	for _, m := range msgs {
		require.NoError(sc.t, sc.ws.WriteMessage(websocket.TextMessage, []byte(m)))
	}
}

func (sc *serverConn) closeWith(code int, text string) {
	sc.t.Helper()
	require.NoError(sc.t, sc.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text)))
}

func usableCredential(t *testing.T) auth.Credential {
	t.Helper()
	cred, err := auth.NewCredential(testutil.MintToken("alice", time.Now().Add(time.Hour)), "refresh-1")
	require.NoError(t, err)
	return cred
}

func waitFor(t *testing.T, c *Client, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = c.Snapshot()
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}
