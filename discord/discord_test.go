package discord

import (
	"testing"

	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeUnmarshal(t *testing.T) {
	tests := []struct {
		input    string
		expected Snowflake
	}{
		{input: `"143090142360371200"`, expected: 143090142360371200},
		{input: `143090142360371200`, expected: 143090142360371200},
		{input: `null`, expected: 0},
		{input: `""`, expected: 0},
	}

	for _, test := range tests {
		var s Snowflake

		require.NoError(t, sandwichjson.Unmarshal([]byte(test.input), &s), test.input)
		assert.Equal(t, test.expected, s, test.input)
	}

	var s Snowflake
	assert.Error(t, sandwichjson.Unmarshal([]byte(`"abc"`), &s))
}

func TestSnowflakeMarshal(t *testing.T) {
	data, err := sandwichjson.Marshal(struct {
		ID Snowflake `json:"id"`
	}{ID: 80351110224678912})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"80351110224678912"}`, string(data))

	assert.Equal(t, "", Snowflake(0).String())
	assert.True(t, Snowflake(0).IsNil())
}

func TestHeartbeatMarshal(t *testing.T) {
	data, err := sandwichjson.Marshal(SentPayload{Op: GatewayOpHeartbeat, Data: &Heartbeat{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":1,"d":null}`, string(data))

	data, err = sandwichjson.Marshal(SentPayload{Op: GatewayOpHeartbeat, Data: &Heartbeat{Sequence: 251}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":1,"d":251}`, string(data))
}

func TestCommandOps(t *testing.T) {
	tests := map[GatewayOp]Command{
		GatewayOpIdentify:            &Identify{},
		GatewayOpResume:              &Resume{},
		GatewayOpHeartbeat:           &Heartbeat{},
		GatewayOpRequestGuildMembers: &RequestGuildMembers{},
		GatewayOpStatusUpdate:        &UpdateStatus{},
		GatewayOpVoiceStateUpdate:    &VoiceStateUpdate{},
	}

	for op, command := range tests {
		assert.Equal(t, op, command.Op(), op.String())
	}

	assert.Equal(t, GatewayOp(6), GatewayOpResume)
	assert.Equal(t, GatewayOp(11), GatewayOpHeartbeatACK)
}

func TestGatewayPayloadUnmarshal(t *testing.T) {
	var payload GatewayPayload

	require.NoError(t, sandwichjson.Unmarshal([]byte(`{"op":0,"t":"READY","s":1,"d":{"session_id":"abc"}}`), &payload))
	assert.Equal(t, GatewayOpDispatch, payload.Op)
	assert.Equal(t, "READY", payload.Type)
	require.NotNil(t, payload.Sequence)
	assert.Equal(t, int64(1), *payload.Sequence)

	var ready Ready
	require.NoError(t, sandwichjson.Unmarshal(payload.Data, &ready))
	assert.Equal(t, "abc", ready.SessionID)

	payload = GatewayPayload{}
	require.NoError(t, sandwichjson.Unmarshal([]byte(`{"op":11,"d":null}`), &payload))
	assert.Nil(t, payload.Sequence)
	assert.Empty(t, payload.Type)
}
