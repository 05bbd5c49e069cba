package rest

import (
	"strings"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
)

// RouteScope holds the identifiers a route's rate limit is scoped to.
type RouteScope struct {
	GuildID      discord.Snowflake
	ChannelID    discord.Snowflake
	WebhookID    discord.Snowflake
	WebhookToken string
}

// Route describes one HTTP endpoint. Path is relative to the client's base URL,
// for example "/channels/{channel_id}/messages".
type Route struct {
	Method string
	Path   string
	Bucket string
}

// NewRoute formats path with the scope's identifiers and derives the bucket key
// from the unformatted template, so routes sharing a template only share a bucket
// when they share scoping identifiers.
func NewRoute(method, path string, scope RouteScope) Route {
	replacer := strings.NewReplacer(
		"{guild_id}", scope.GuildID.String(),
		"{channel_id}", scope.ChannelID.String(),
		"{webhook_id}", scope.WebhookID.String(),
		"{webhook_token}", scope.WebhookToken,
	)

	var webhookBucket string
	if !scope.WebhookID.IsNil() {
		webhookBucket = scope.WebhookID.String() + ":" + scope.WebhookToken
	}

	return Route{
		Method: method,
		Path:   replacer.Replace(path),
		Bucket: path + "-" + scope.GuildID.String() + ":" + scope.ChannelID.String() + ":" + webhookBucket,
	}
}

func (r Route) String() string {
	return r.Method + " " + r.Path
}
