// Package retry retries operations against backends that may not be up yet,
// such as a database container starting alongside the judge.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

type Settings struct {
	InitialBackoff time.Duration
	Multiplier     int
	MaxBackoff     time.Duration
	// MaxRetries caps the number of attempts. Zero retries forever.
	MaxRetries int
}

func (s Settings) Verify() error {
	if s.InitialBackoff <= 0 {
		return errors.Newf("initial backoff must be set to >= 0, got %s", s.InitialBackoff)
	}
	if s.Multiplier < 1 {
		return errors.Newf("multiplier must be >= 1, got %d", s.Multiplier)
	}
	if s.MaxBackoff > 0 && s.InitialBackoff > s.MaxBackoff {
		return errors.Newf("initial backoff (%s) must be less than max backoff (%s)", s.InitialBackoff, s.MaxBackoff)
	}
	return nil
}

// DefaultSettings gives up on a backend after roughly half a minute.
func DefaultSettings() Settings {
	return Settings{
		InitialBackoff: 500 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     8 * time.Second,
		MaxRetries:     6,
	}
}

// Backoff is the wait after failed attempt n, counting from 1.
func (s Settings) Backoff(n int) time.Duration {
	d := s.InitialBackoff
	for i := 1; i < n; i++ {
		if s.MaxBackoff > 0 && d >= s.MaxBackoff {
			break
		}
		if d > time.Duration(math.MaxInt64)/time.Duration(s.Multiplier) {
			break
		}
		d *= time.Duration(s.Multiplier)
	}
	if s.MaxBackoff > 0 && d > s.MaxBackoff {
		return s.MaxBackoff
	}
	return d
}

// exhausted reports whether no attempt may follow attempt n.
func (s Settings) exhausted(n int) bool {
	return s.MaxRetries > 0 && n >= s.MaxRetries
}

// Do calls fn until it succeeds, the retries are exhausted or ctx is done.
// The last error from fn is returned.
func Do(ctx context.Context, settings Settings, fn func() error) error {
	if err := settings.Verify(); err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if settings.exhausted(attempt) {
			return errors.Wrapf(err, "giving up after %d attempts", attempt)
		}
		t := time.NewTimer(settings.Backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.CombineErrors(ctx.Err(), err)
		case <-t.C:
		}
	}
}
