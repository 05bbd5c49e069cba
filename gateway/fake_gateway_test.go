package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/rest"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

const testTimeout = 5 * time.Second

// fakeGateway serves /gateway/bot and accepts gateway sockets on every other path.
type fakeGateway struct {
	t      *testing.T
	server *httptest.Server

	// script is called from the connection's read goroutine for every payload the client sends.
	script func(fc *fakeConn, payload discord.GatewayPayload)

	gatewayBot        discord.GatewayBot
	heartbeatInterval int32
	autoAck           bool

	mu        sync.Mutex
	conns     []*fakeConn
	connected chan *fakeConn
}

type fakeConn struct {
	gateway *fakeGateway
	conn    *websocket.Conn
	path    string
	index   int

	received chan discord.GatewayPayload
	closed   chan struct{}
}

func newFakeGateway(t *testing.T, script func(fc *fakeConn, payload discord.GatewayPayload)) *fakeGateway {
	t.Helper()

	fg := &fakeGateway{
		t:                 t,
		script:            script,
		heartbeatInterval: 45000,
		autoAck:           true,
		connected:         make(chan *fakeConn, 64),
	}

	fg.server = httptest.NewServer(http.HandlerFunc(fg.serveHTTP))
	t.Cleanup(fg.server.Close)

	fg.gatewayBot = discord.GatewayBot{
		URL:    fg.URL(),
		Shards: 1,
		SessionStartLimit: discord.SessionStartLimit{
			Total:          1000,
			Remaining:      1000,
			MaxConcurrency: 1,
		},
	}

	return fg
}

// URL is the websocket url of the fake gateway.
func (fg *fakeGateway) URL() string {
	return "ws" + strings.TrimPrefix(fg.server.URL, "http")
}

func (fg *fakeGateway) client() *rest.Client {
	return rest.NewClient("token", rest.WithBaseURL(fg.server.URL), rest.WithHTTPClient(fg.server.Client()))
}

func (fg *fakeGateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/gateway/bot" {
		body, _ := sandwichjson.Marshal(fg.gatewayBot)
		_, _ = w.Write(body)

		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	fg.mu.Lock()
	fc := &fakeConn{
		gateway:  fg,
		conn:     conn,
		path:     r.URL.Path,
		index:    len(fg.conns),
		received: make(chan discord.GatewayPayload, 64),
		closed:   make(chan struct{}),
	}
	fg.conns = append(fg.conns, fc)
	fg.mu.Unlock()

	select {
	case fg.connected <- fc:
	default:
	}

	defer close(fc.closed)

	fc.send(discord.GatewayOpHello, "", nil, discord.Hello{HeartbeatInterval: fg.heartbeatInterval})

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}

		var payload discord.GatewayPayload
		if err := sandwichjson.Unmarshal(data, &payload); err != nil {
			continue
		}

		select {
		case fc.received <- payload:
		default:
		}

		if payload.Op == discord.GatewayOpHeartbeat && fg.autoAck {
			fc.send(discord.GatewayOpHeartbeatACK, "", nil, nil)
		}

		if fg.script != nil {
			fg.script(fc, payload)
		}
	}
}

func (fg *fakeGateway) connections() int {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	return len(fg.conns)
}

// nextConn waits for the next socket the client opens.
func (fg *fakeGateway) nextConn(t *testing.T) *fakeConn {
	t.Helper()

	select {
	case fc := <-fg.connected:
		return fc
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a gateway connection")

		return nil
	}
}

func (fc *fakeConn) send(op discord.GatewayOp, eventType string, sequence *int64, data any) {
	raw, err := sandwichjson.Marshal(data)
	if err != nil {
		panic(err)
	}

	payload, err := sandwichjson.Marshal(discord.GatewayPayload{
		Op:       op,
		Type:     eventType,
		Sequence: sequence,
		Data:     json.RawMessage(raw),
	})
	if err != nil {
		panic(err)
	}

	_ = fc.conn.Write(context.Background(), websocket.MessageText, payload)
}

func (fc *fakeConn) dispatch(eventType string, sequence int64, data any) {
	fc.send(discord.GatewayOpDispatch, eventType, &sequence, data)
}

func (fc *fakeConn) ready(sessionID string, sequence int64) {
	fc.dispatch("READY", sequence, discord.Ready{
		SessionID:        sessionID,
		ResumeGatewayURL: fc.gateway.URL() + "/resume",
		Version:          10,
	})
}

func (fc *fakeConn) close(code int) {
	_ = fc.conn.Close(websocket.StatusCode(code), "")
}

// next waits for the next payload the client sends on this connection, skipping heartbeats.
func (fc *fakeConn) next(t *testing.T) discord.GatewayPayload {
	t.Helper()

	for {
		select {
		case payload := <-fc.received:
			if payload.Op == discord.GatewayOpHeartbeat {
				continue
			}

			return payload
		case <-time.After(testTimeout):
			t.Fatal("timed out waiting for a payload")

			return discord.GatewayPayload{}
		}
	}
}

func (fc *fakeConn) nextOp(t *testing.T, op discord.GatewayOp) discord.GatewayPayload {
	t.Helper()

	for {
		select {
		case payload := <-fc.received:
			if payload.Op == op {
				return payload
			}
		case <-time.After(testTimeout):
			t.Fatalf("timed out waiting for op %d", op)

			return discord.GatewayPayload{}
		}
	}
}

func newTestShard(fg *fakeGateway, id, count int32) *Shard {
	return NewShard(ShardConfig{
		Dialer:  fg.client(),
		Logger:  zerolog.Nop(),
		Token:   "token",
		ID:      id,
		Count:   count,
		Intents: int32(discord.IntentGuilds | discord.IntentGuildMessages),
	})
}

// runShard starts the connection loop and returns the channel its result is sent on.
func runShard(t *testing.T, shard *Shard, gatewayURL string) <-chan error {
	t.Helper()

	result := make(chan error, 1)

	go func() {
		result <- shard.Connect(context.Background(), gatewayURL)
	}()

	t.Cleanup(shard.Close)

	return result
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()

	select {
	case err := <-result:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the connection loop to exit")

		return nil
	}
}

func decodePayload[T any](t *testing.T, payload discord.GatewayPayload) T {
	t.Helper()

	var out T
	require.NoError(t, sandwichjson.Unmarshal(payload.Data, &out), fmt.Sprintf("op %d", payload.Op))

	return out
}
