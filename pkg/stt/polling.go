package stt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollingTimeout is returned when a batch job exceeds its provider ceiling.
var ErrPollingTimeout = errors.New("stt: polling timed out")

type pollingConfig struct {
	interval time.Duration
	ceiling  time.Duration
	label    string
}

func defaultPollingConfig(label string) pollingConfig {
	return pollingConfig{
		interval: 3 * time.Second,
		ceiling:  5 * time.Minute,
		label:    label,
	}
}

// pollResult is what one poll attempt reports back.
type pollResult int

const (
	pollPending pollResult = iota
	pollDone
)

// pollUntil calls fn every cfg.interval until it reports done, fails, or the
// ceiling elapses.
func pollUntil(ctx context.Context, cfg pollingConfig, fn func(ctx context.Context) (pollResult, error)) error {
	deadline := time.Now().Add(cfg.ceiling)
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for {
		result, err := fn(ctx)
		if err != nil {
			return err
		}
		if result == pollDone {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrPollingTimeout, cfg.label)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
