package vna

import (
	"context"
	"time"
)

// SingleTrigger arms a single sweep on the channel and blocks until it
// completes. Sweeps can outlast the link default, so a per-call timeout is
// accepted; zero uses the session default.
func (s *Session) SingleTrigger(ctx context.Context, ch int, timeout time.Duration) error {
	if err := s.Write(ctx, "trigger:source immediate"); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:sweep:mode single", ch); err != nil {
		return err
	}
	return s.WaitOPC(ctx, timeout)
}

// HoldTrigger parks the channel so it stops sweeping.
func (s *Session) HoldTrigger(ctx context.Context, ch int) error {
	if err := s.Write(ctx, "trigger:source immediate"); err != nil {
		return err
	}
	return s.Writef(ctx, "sense%d:sweep:mode hold", ch)
}

// ContinuousTrigger returns the channel to free-running sweeps.
func (s *Session) ContinuousTrigger(ctx context.Context, ch int) error {
	if err := s.Write(ctx, "trigger:source immediate"); err != nil {
		return err
	}
	return s.Writef(ctx, "sense%d:sweep:mode continuous", ch)
}
