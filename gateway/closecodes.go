package gateway

import "github.com/WelcomerTeam/Sandwich-Gateway/discord"

// CloseClass describes how a shard recovers from a gateway close code.
type CloseClass int

const (
	// CloseResumable reconnects and resumes the existing session.
	CloseResumable CloseClass = iota
	// CloseNonResumable clears the session and sequence then reconnects with a fresh identify.
	CloseNonResumable
	// CloseCritical stops the shard. Reconnecting would fail the same way.
	CloseCritical
)

func (class CloseClass) String() string {
	return []string{
		"Resumable",
		"NonResumable",
		"Critical",
	}[class]
}

// ClassifyCloseCode classifies a websocket close code. Only authentication,
// API version and intent problems are critical. Everything else, including
// -1 for a connection lost without a close frame, is resumable.
func ClassifyCloseCode(code int) CloseClass {
	switch code {
	case discord.CloseNotAuthenticated,
		discord.CloseAuthenticationFailed,
		discord.CloseInvalidAPIVersion,
		discord.CloseInvalidIntents,
		discord.CloseDisallowedIntents:
		return CloseCritical
	case discord.CloseInvalidSeq,
		discord.CloseRateLimited,
		discord.CloseSessionTimeout:
		return CloseNonResumable
	default:
		return CloseResumable
	}
}
