package discord

import (
	"strconv"
)

// Command is an outbound gateway payload. Each command knows the opcode it is sent under.
type Command interface {
	Op() GatewayOp
}

// Identify represents the initial handshake with the gateway.
type Identify struct {
	Properties     *IdentifyProperties `json:"properties"`
	Presence       *UpdateStatus       `json:"presence,omitempty"`
	Token          string              `json:"token"`
	Shard          [2]int32            `json:"shard"`
	LargeThreshold int32               `json:"large_threshold,omitempty"`
	Intents        int32               `json:"intents"`
	Compress       bool                `json:"compress"`
}

func (*Identify) Op() GatewayOp { return GatewayOpIdentify }

// IdentifyProperties are the connection properties sent in the identify packet.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume resumes a dropped gateway connection.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

func (*Resume) Op() GatewayOp { return GatewayOpResume }

// Heartbeat carries the last received sequence. A zero sequence is sent as null.
type Heartbeat struct {
	Sequence int64
}

func (*Heartbeat) Op() GatewayOp { return GatewayOpHeartbeat }

func (h *Heartbeat) MarshalJSON() ([]byte, error) {
	if h.Sequence == 0 {
		return null, nil
	}

	return strconv.AppendInt(nil, h.Sequence, 10), nil
}

// RequestGuildMembers requests members for a guild.
type RequestGuildMembers struct {
	Query     *string     `json:"query,omitempty"`
	Nonce     string      `json:"nonce,omitempty"`
	UserIDs   []Snowflake `json:"user_ids,omitempty"`
	GuildID   Snowflake   `json:"guild_id"`
	Limit     int32       `json:"limit"`
	Presences bool        `json:"presences,omitempty"`
}

func (*RequestGuildMembers) Op() GatewayOp { return GatewayOpRequestGuildMembers }

// PresenceStatus represents a presence's status.
type PresenceStatus string

const (
	PresenceStatusIdle    PresenceStatus = "idle"
	PresenceStatusDND     PresenceStatus = "dnd"
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusOffline PresenceStatus = "invisible"
)

// ActivityType represents an activity's type.
type ActivityType int

const (
	ActivityTypeGame ActivityType = iota
	ActivityTypeStreaming
	ActivityTypeListening
	ActivityTypeWatching
	ActivityTypeCustom
	ActivityTypeCompeting
)

// Activity is the subset of an activity a bot may set on itself.
type Activity struct {
	URL   *string      `json:"url,omitempty" yaml:"url,omitempty"`
	Name  string       `json:"name" yaml:"name"`
	State string       `json:"state,omitempty" yaml:"state,omitempty"`
	Type  ActivityType `json:"type" yaml:"type"`
}

// UpdateStatus updates a client's presence.
type UpdateStatus struct {
	Since      *int64         `json:"since" yaml:"since,omitempty"`
	Status     PresenceStatus `json:"status" yaml:"status"`
	Activities []*Activity    `json:"activities" yaml:"activities"`
	AFK        bool           `json:"afk" yaml:"afk"`
}

func (*UpdateStatus) Op() GatewayOp { return GatewayOpStatusUpdate }

// VoiceStateUpdate joins, moves or leaves a voice channel. A nil ChannelID disconnects.
type VoiceStateUpdate struct {
	ChannelID *Snowflake `json:"channel_id"`
	GuildID   Snowflake  `json:"guild_id"`
	SelfMute  bool       `json:"self_mute"`
	SelfDeaf  bool       `json:"self_deaf"`
}

func (*VoiceStateUpdate) Op() GatewayOp { return GatewayOpVoiceStateUpdate }
