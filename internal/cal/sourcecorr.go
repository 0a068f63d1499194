package cal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"govna/internal/vna"
)

// sourceCorrPassed is the status fragment the instrument reports when a
// modulation source correction converged.
const sourceCorrPassed = "Calibration succeeded."

// SourceCorrection acquires the modulation source correction for one
// source port, retrying the whole acquisition when the instrument reports
// a failed convergence.
type SourceCorrection struct {
	sess *vna.Session
	log  *logrus.Entry

	Port    int
	Timeout time.Duration
	Retry   RetryPolicy
}

// NewSourceCorrection returns a corrector for the port with a single-retry
// policy; convergence failures are usually transient but a stuck setup
// should not loop forever.
func NewSourceCorrection(sess *vna.Session, port int) *SourceCorrection {
	return &SourceCorrection{
		sess:    sess,
		log:     logrus.WithField("component", "sourcecorr").WithField("port", port),
		Port:    port,
		Timeout: DefaultStepTimeout,
		Retry:   RetryPolicy{MaxRetries: 1},
	}
}

// Acquire runs the synchronous correction and checks the reported status,
// repeating per the retry policy until the instrument reports success.
func (s *SourceCorrection) Acquire(ctx context.Context) error {
	attempts := 0
	for {
		attempts++
		status, err := s.acquireOnce(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(status, sourceCorrPassed) {
			s.log.WithField("attempts", attempts).Info("source correction acquired")
			return nil
		}
		if !s.Retry.Unlimited && attempts > s.Retry.MaxRetries {
			return fmt.Errorf("source correction on port %d failed after %d attempts: %s", s.Port, attempts, status)
		}
		s.log.WithField("attempt", attempts).WithField("status", status).Warn("source correction failed, retrying")
	}
}

func (s *SourceCorrection) acquireOnce(ctx context.Context) (string, error) {
	if err := s.sess.Writef(ctx, "source%d:modulation:correction:collection:acquire synchronous", s.Port); err != nil {
		return "", err
	}
	if err := s.sess.WaitOPC(ctx, s.Timeout); err != nil {
		return "", fmt.Errorf("source correction did not complete: %w", err)
	}
	status, err := s.sess.Queryf(ctx, `source%d:modulation:correction:collection:acquire:status? "port %d"`, s.Port, s.Port)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(status), `"`), nil
}
