// Package cal drives the instrument's calibration machinery: the guided
// calibration sequence with per-step retry, cal-set catalog access, fixture
// de-embedding and source-correction acquisition.
package cal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"govna/internal/scpi"
	"govna/internal/vna"
)

// RetryPolicy bounds how often a rejected calibration step is re-measured.
type RetryPolicy struct {
	// Unlimited retries the step until it succeeds or the link fails.
	Unlimited bool

	// MaxRetries is the number of retries after the first attempt when not
	// unlimited; MaxRetries=1 allows two attempts total.
	MaxRetries int
}

// ConfirmFunc is called before each standard measurement so an operator can
// make the connection. Returning an error aborts the run. A nil ConfirmFunc
// proceeds unattended.
type ConfirmFunc func(step, total int, description string) error

// DefaultStepTimeout allows for standard measurements that run far longer
// than ordinary sweeps.
const DefaultStepTimeout = 60 * time.Second

// Guided runs one guided calibration on a channel: definition, ordered
// standard measurements with retry, and a durably named save.
type Guided struct {
	sess *vna.Session
	log  *logrus.Entry

	Channel     int
	StepTimeout time.Duration
	Retry       RetryPolicy
	Confirm     ConfirmFunc
}

// NewGuided prepares a guided calibration on the channel with unlimited
// retries and no operator prompt.
func NewGuided(sess *vna.Session, ch int) *Guided {
	return &Guided{
		sess:        sess,
		log:         logrus.WithField("component", "cal").WithField("channel", ch),
		Channel:     ch,
		StepTimeout: DefaultStepTimeout,
		Retry:       RetryPolicy{Unlimited: true},
	}
}

// Run initiates the guided sequence and measures every required standard in
// order. Each step the instrument rejects is retried identically until it
// passes or the retry budget is exhausted; exhaustion aborts the whole run
// with nothing saved. Returns the number of steps measured.
func (g *Guided) Run(ctx context.Context) (int, error) {
	if err := g.sess.Writef(ctx, "sense%d:correction:collect:guided:initiate", g.Channel); err != nil {
		return 0, err
	}
	raw, err := g.sess.Queryf(ctx, "sense%d:correction:collect:guided:steps?", g.Channel)
	if err != nil {
		return 0, err
	}
	steps, err := parseSteps(raw)
	if err != nil {
		return 0, err
	}
	g.log.WithField("steps", steps).Info("guided calibration initiated")

	for step := 1; step <= steps; step++ {
		desc, err := g.sess.Queryf(ctx, "sense%d:correction:collect:guided:description? %d", g.Channel, step)
		if err != nil {
			return 0, err
		}
		if g.Confirm != nil {
			if err := g.Confirm(step, steps, desc); err != nil {
				return 0, fmt.Errorf("calibration aborted at step %d: %w", step, err)
			}
		}
		if err := g.measureStandard(ctx, step); err != nil {
			return 0, err
		}
		g.log.WithField("step", step).WithField("total", steps).Info("calibration step complete")
	}
	return steps, nil
}

// measureStandard acquires one standard, retrying while the instrument
// rejects it. Only instrument-reported errors are retryable; a transport
// failure is always fatal.
func (g *Guided) measureStandard(ctx context.Context, step int) error {
	attempts := 0
	for {
		attempts++
		err := g.acquireStandard(ctx, step)
		if err == nil {
			return nil
		}

		var instErr *scpi.InstrumentError
		if !errors.As(err, &instErr) {
			return fmt.Errorf("calibration step %d failed: %w", step, err)
		}
		if !g.Retry.Unlimited && attempts > g.Retry.MaxRetries {
			return fmt.Errorf("calibration step %d rejected after %d attempts: %w", step, attempts, err)
		}
		g.log.WithField("step", step).WithField("attempt", attempts).WithError(err).Warn("standard rejected, retrying")
	}
}

func (g *Guided) acquireStandard(ctx context.Context, step int) error {
	if err := g.sess.Writef(ctx, "sense%d:correction:collect:guided:acquire stan%d", g.Channel, step); err != nil {
		return err
	}
	if err := g.sess.WaitOPC(ctx, g.StepTimeout); err != nil {
		return err
	}
	return g.sess.ErrCheck(ctx, fmt.Sprintf("measure standard %d", step))
}

// SavedName composes the durable cal-set name, appending the formatted
// timestamp when requested.
func SavedName(base string, t time.Time, timestamp bool) string {
	if !timestamp {
		return base
	}
	return base + "_" + t.Format("20060102_15-04-05")
}

// Finalize completes the guided calibration: it turns on correction and
// saves the cal set under the composed name. This is the only step with a
// durable, externally observable side effect.
func (g *Guided) Finalize(ctx context.Context, base string, timestamp bool) (string, error) {
	name := SavedName(base, time.Now(), timestamp)
	if err := g.sess.Writef(ctx, `sense%d:correction:collect:guided:save:cset "%s"`, g.Channel, name); err != nil {
		return "", err
	}
	if err := g.sess.WaitOPC(ctx, g.StepTimeout); err != nil {
		return "", err
	}
	if err := g.sess.ErrCheck(ctx, fmt.Sprintf("save cal set %q", name)); err != nil {
		return "", err
	}
	g.log.WithField("calset", name).Info("calibration saved")
	return name, nil
}

func parseSteps(raw string) (int, error) {
	var steps int
	if _, err := fmt.Sscanf(raw, "%d", &steps); err != nil {
		return 0, fmt.Errorf("failed to parse guided step count %q: %w", raw, err)
	}
	if steps <= 0 {
		return 0, fmt.Errorf("instrument reported %d guided steps", steps)
	}
	return steps, nil
}
