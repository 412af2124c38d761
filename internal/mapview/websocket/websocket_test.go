package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
	"github.com/m-tsuru/tenchi-geolocation/pkg/streaming"
)

// Compile-time interface checks.
var (
	_ mapview.Surface = (*Surface)(nil)
	_ mapview.Flusher = (*Surface)(nil)
)

// testServer upgrades to WebSocket, records received envelopes per
// connection, and acks hello. When dropFirst is set, the first connection is
// closed right after the first non-hello message.
func testServer(t *testing.T, dropFirst bool) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		conn := ml.connect(r.URL.Query().Get("secret"))
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(conn, env)

			if env.Type == streaming.TypeHello {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
				continue
			}
			if dropFirst && conn == 0 {
				return
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu      sync.Mutex
	conns   [][]streaming.Envelope
	secrets []string
}

func (m *messageLog) connect(secret string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns = append(m.conns, nil)
	m.secrets = append(m.secrets, secret)
	return len(m.conns) - 1
}

func (m *messageLog) secret(conn int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secrets[conn]
}

func (m *messageLog) add(conn int, env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn] = append(m.conns[conn], env)
}

func (m *messageLog) types(conn int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn >= len(m.conns) {
		return nil
	}
	out := make([]string, 0, len(m.conns[conn]))
	for _, env := range m.conns[conn] {
		out = append(out, env.Type)
	}
	return out
}

func (m *messageLog) envelopes(conn int) []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.conns[conn]))
	copy(cp, m.conns[conn])
	return cp
}

func (m *messageLog) envelopesOrNil(conn int) []streaming.Envelope {
	m.mu.Lock()
	n := len(m.conns)
	m.mu.Unlock()
	if conn >= n {
		return nil
	}
	return m.envelopes(conn)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectSendsHello(t *testing.T) {
	srv, ml := testServer(t, false)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv), Secret: "s3", Hello: streaming.HelloPayload{Viewer: "v1", Zoom: 13}}, nil)
	require.NoError(t, s.Connect())
	defer s.Close()

	assert.Equal(t, []string{streaming.TypeHello}, ml.types(0))
	assert.Equal(t, "s3", ml.secret(0))

	var hello streaming.HelloPayload
	require.NoError(t, json.Unmarshal(ml.envelopes(0)[0].Payload, &hello))
	assert.Equal(t, "v1", hello.Viewer)
	assert.Equal(t, 13, hello.Zoom)
}

func TestMarkerMessages(t *testing.T) {
	srv, ml := testServer(t, false)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, s.Connect())
	defer s.Close()

	h := mapview.Place(s, mapview.Overlay{
		Position: core.Position{Latitude: 35, Longitude: 139},
		Style:    mapview.Style{Color: "#27ae60", Size: 22, BorderColor: "#fff"},
		Popup:    "<b>Alpha</b>",
	})
	s.RemoveMarker(h)
	s.RemoveMarker(h) // unknown now, not forwarded
	require.NoError(t, s.Flush())

	want := []string{
		streaming.TypeHello,
		streaming.TypeAddMarker,
		streaming.TypeBindPopup,
		streaming.TypeRemoveMarker,
		streaming.TypeFlush,
	}
	require.Eventually(t, func() bool {
		return len(ml.types(0)) == len(want)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, ml.types(0))

	var add streaming.AddMarkerPayload
	require.NoError(t, json.Unmarshal(ml.envelopes(0)[1].Payload, &add))
	assert.Equal(t, string(h), add.Handle)
	assert.Equal(t, "#27ae60", add.Style.Color)
	assert.InDelta(t, 35.0, add.Position.Latitude, 1e-9)

	assert.Equal(t, 0, s.Len())
}

func TestReconnectReplaysLayer(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)}, nil)
	s.conn.backoff = 10 * time.Millisecond
	require.NoError(t, s.Connect())
	defer s.Close()

	mapview.Place(s, mapview.Overlay{
		Position: core.Position{Latitude: 1, Longitude: 2},
		Popup:    "p",
	})

	// The server drops the first connection after the add; the surface
	// reconnects and replays hello plus the current marker.
	require.Eventually(t, func() bool {
		types := ml.types(1)
		return len(types) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	types := ml.types(1)
	assert.Equal(t, streaming.TypeHello, types[0])
	assert.Equal(t, streaming.TypeAddMarker, types[1])
	assert.Equal(t, streaming.TypeBindPopup, types[2])
}

func TestReconnectSendsEachMarkerOnce(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)}, nil)
	s.conn.backoff = 200 * time.Millisecond
	require.NoError(t, s.Connect())
	defer s.Close()

	mapview.Place(s, mapview.Overlay{Position: core.Position{Latitude: 1, Longitude: 2}})
	require.Eventually(t, func() bool {
		return len(ml.types(0)) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// Added while the relay is away.
	time.Sleep(50 * time.Millisecond)
	mapview.Place(s, mapview.Overlay{Position: core.Position{Latitude: 3, Longitude: 4}})

	addHandles := func() []string {
		var out []string
		for _, env := range ml.envelopesOrNil(1) {
			if env.Type != streaming.TypeAddMarker {
				continue
			}
			var add streaming.AddMarkerPayload
			if err := json.Unmarshal(env.Payload, &add); err == nil {
				out = append(out, add.Handle)
			}
		}
		return out
	}
	require.Eventually(t, func() bool {
		return len(addHandles()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	handles := addHandles()
	assert.Len(t, handles, 2)
	assert.NotEqual(t, handles[0], handles[1])
}

func TestDiscardPending(t *testing.T) {
	c := newConnection(slog.Default(), nil)
	c.send([]byte("a"))
	c.send([]byte("b"))

	assert.Equal(t, 2, c.discardPending())
	assert.Equal(t, 0, c.discardPending())
}

func TestCloseWhileWriting(t *testing.T) {
	srv, _ := testServer(t, false)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, s.Connect())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			mapview.Place(s, mapview.Overlay{
				Position: core.Position{Latitude: 1, Longitude: float64(i % 180)},
				Popup:    strings.Repeat("x", 512),
			})
		}
	}()

	time.Sleep(time.Millisecond)
	_ = s.Close()
	wg.Wait()
	assert.NoError(t, s.Close())
}

func TestCloseIdempotent(t *testing.T) {
	srv, _ := testServer(t, false)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, s.Connect())
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestConnectFailsWithoutServer(t *testing.T) {
	s := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	assert.Error(t, s.Connect())
}
