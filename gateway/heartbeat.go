package gateway

import (
	"context"
	"math/rand"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
)

// startPacemaker replaces any running pacemaker with one beating every interval.
func (s *Shard) startPacemaker(interval time.Duration) {
	s.pacemakerMu.Lock()
	defer s.pacemakerMu.Unlock()

	s.heartbeatDeadSignal.Close("HB")
	s.heartbeatDeadSignal.Revive()

	if s.closing.Load() {
		return
	}

	s.heartbeatInterval.Store(interval)

	ctx, cancel := context.WithCancel(context.Background())
	dead := s.heartbeatDeadSignal.Dead()

	s.heartbeatDeadSignal.Started()

	go func() {
		defer s.heartbeatDeadSignal.Done()
		defer cancel()

		go func() {
			select {
			case <-dead:
				cancel()
			case <-ctx.Done():
			}
		}()

		s.heartbeat(ctx, interval)
	}()
}

// stopPacemaker returns once the running pacemaker, if any, has exited.
func (s *Shard) stopPacemaker() {
	s.pacemakerMu.Lock()
	defer s.pacemakerMu.Unlock()

	s.heartbeatDeadSignal.Close("HB")
	s.heartbeatDeadSignal.Revive()
}

// heartbeat maintains a heartbeat with the gateway. A beat that is still not
// acknowledged when the next one is due closes the connection.
func (s *Shard) heartbeat(ctx context.Context, interval time.Duration) {
	s.heartbeatActive.Store(true)
	defer s.heartbeatActive.Store(false)

	t := time.NewTimer(heartbeatJitter(interval))
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if s.heartbeatStale(interval, time.Now().UTC()) {
			s.Logger.Warn().Msg("Failed to ack and passed heartbeat failure interval")
			s.closeForReconnect(WebsocketReconnectCloseCode)

			return
		}

		if err := s.sendHeartbeat(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			s.Logger.Error().Err(err).Msg("Failed to heartbeat")
		}

		t.Reset(interval)
	}
}

// heartbeatStale reports if the last heartbeat has gone unacknowledged for at least interval.
func (s *Shard) heartbeatStale(interval time.Duration, now time.Time) bool {
	sent := s.lastHeartbeatSent.Load()
	ack := s.lastHeartbeatAck.Load()

	return ack.Before(sent) && now.Sub(sent) >= interval
}

func (s *Shard) sendHeartbeat(ctx context.Context) error {
	s.lastHeartbeatSent.Store(time.Now().UTC())

	return s.Send(ctx, &discord.Heartbeat{Sequence: s.sequence.Load()})
}

// heartbeatJitter is the delay before the first beat, in [0, interval).
func heartbeatJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(int64(interval)))
}
