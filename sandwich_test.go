package sandwich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/gateway"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func newTestGatewayServer(t *testing.T, remaining int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gateway/bot" {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json")

		_ = sandwichjson.MarshalToWriter(w, discord.GatewayBot{
			URL:    "ws://127.0.0.1:1",
			Shards: 2,
			SessionStartLimit: discord.SessionStartLimit{
				Total:          1000,
				Remaining:      remaining,
				MaxConcurrency: 1,
			},
		})
	}))
	t.Cleanup(server.Close)

	return server
}

func newTestConfiguration(baseURL string) SandwichConfiguration {
	return SandwichConfiguration{
		REST: RESTConfiguration{
			BaseURL:    baseURL,
			MaxRetries: 1,
		},
		Gateway: GatewayConfiguration{
			Token:     "token",
			FailEarly: true,
		},
	}
}

func TestNewSandwich(t *testing.T) {
	configuration := newTestConfiguration("http://127.0.0.1:1")
	configuration.Producer.Type = "redis"

	sg, err := NewSandwich(zerolog.Nop(), configuration)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:1", sg.Client.BaseURL)
	assert.Equal(t, 1, sg.Client.MaxRetries)
	require.NotNil(t, sg.Producer)
	assert.Equal(t, "redis", sg.Producer.String())
	assert.True(t, sg.Producer.IsClosed())

	_, err = NewSandwich(zerolog.Nop(), SandwichConfiguration{})
	assert.ErrorIs(t, err, ErrConfigurationValidateToken)
}

func TestSandwichOpenFailsEarly(t *testing.T) {
	server := newTestGatewayServer(t, 1)

	sg, err := NewSandwich(zerolog.Nop(), newTestConfiguration(server.URL))
	require.NoError(t, err)
	t.Cleanup(sg.Close)

	err = sg.Open(context.Background())
	require.ErrorIs(t, err, gateway.ErrSessionLimitExhausted)

	require.NotNil(t, sg.Manager.Gateway())
	assert.Equal(t, int32(2), sg.Manager.Gateway().Shards)
	assert.Empty(t, sg.Manager.Shards())

	assert.ErrorIs(t, sg.Open(context.Background()), ErrSandwichAlreadyOpen)
	assert.ErrorIs(t, sg.Wait(context.Background()), gateway.ErrSessionLimitExhausted)
}

// recordingProducer is an in-memory MQClient that notes publishes made after Close.
type recordingProducer struct {
	mu         sync.Mutex
	channel    string
	published  int
	afterClose int
	closed     bool
	connected  bool
}

func (p *recordingProducer) String() string {
	return "recording"
}

func (p *recordingProducer) Channel() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel
}

func (p *recordingProducer) Connect(_ context.Context, _ string, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connected = true

	return nil
}

func (p *recordingProducer) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.channel = channel

	if p.closed {
		p.afterClose++

		return nil
	}

	p.published++

	return nil
}

func (p *recordingProducer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.connected || p.closed
}

func (p *recordingProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
}

func (p *recordingProducer) counts() (published, afterClose int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.published, p.afterClose
}

// serveStreamingGateway answers identify with READY and then streams dispatches until the socket closes.
func serveStreamingGateway(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := r.Context()

	write := func(payload string) error {
		return conn.Write(ctx, websocket.MessageText, []byte(payload))
	}

	if write(`{"op":10,"d":{"heartbeat_interval":45000}}`) != nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var payload discord.GatewayPayload
		if sandwichjson.Unmarshal(data, &payload) != nil || payload.Op != discord.GatewayOpIdentify {
			continue
		}

		if write(`{"op":0,"t":"READY","s":1,"d":{"session_id":"session","resume_gateway_url":""}}`) != nil {
			return
		}

		go func() {
			for sequence := 2; ; sequence++ {
				if write(fmt.Sprintf(`{"op":0,"t":"MESSAGE_CREATE","s":%d,"d":{}}`, sequence)) != nil {
					return
				}

				time.Sleep(time.Millisecond)
			}
		}()
	}
}

func TestSandwichCloseDrainsShardsBeforeProducer(t *testing.T) {
	var server *httptest.Server

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gateway/bot" {
			serveStreamingGateway(w, r)

			return
		}

		_ = sandwichjson.MarshalToWriter(w, discord.GatewayBot{
			URL:    "ws" + strings.TrimPrefix(server.URL, "http"),
			Shards: 1,
			SessionStartLimit: discord.SessionStartLimit{
				Total:          1000,
				Remaining:      1000,
				MaxConcurrency: 1,
			},
		})
	}))
	t.Cleanup(server.Close)

	configuration := newTestConfiguration(server.URL)
	configuration.Producer.Channel = "sandwich"

	sg, err := NewSandwich(zerolog.Nop(), configuration)
	require.NoError(t, err)

	producer := &recordingProducer{}
	sg.Producer = producer

	require.NoError(t, sg.Open(context.Background()))

	require.Eventually(t, func() bool {
		published, _ := producer.counts()

		return published >= 20
	}, 5*time.Second, 5*time.Millisecond)

	sg.Close()

	_, afterClose := producer.counts()
	assert.Zero(t, afterClose)
	assert.True(t, producer.IsClosed())
	assert.Equal(t, "sandwich", producer.Channel())

	for _, shard := range sg.Manager.Shards() {
		assert.Equal(t, gateway.ShardStateDisconnected, shard.Status())
	}
}
