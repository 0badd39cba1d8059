package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChild runs until its context ends or a scripted failure fires.
type scriptedChild struct {
	id       string
	starts   atomic.Int32
	failures int32 // fail this many first runs, then run clean
	ran      chan struct{}
}

func newScriptedChild(id string, failures int32) *scriptedChild {
	return &scriptedChild{id: id, failures: failures, ran: make(chan struct{}, 64)}
}

func (c *scriptedChild) name() string { return c.id }

func (c *scriptedChild) run(ctx context.Context) error {
	n := c.starts.Add(1)
	select {
	case c.ran <- struct{}{}:
	default:
	}

	if n <= c.failures {
		return errors.New("scripted failure")
	}
	<-ctx.Done()
	return nil
}

func testSupervisor(specs []childSpec) *Supervisor {
	return &Supervisor{
		sctx:   Context{Params: SessionParams{SessionID: "test"}},
		mode:   MicAndSpeaker,
		emit:   newEmitter("test"),
		logger: log.Default(),
		specs:  specs,
		done:   make(chan struct{}),
	}
}

func waitForStarts(t *testing.T, c *scriptedChild, want int32, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for c.starts.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("%s: %d starts, want %d", c.id, c.starts.Load(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSupervisorRestForOneRestartsLaterChildren(t *testing.T) {
	source := newScriptedChild("source", 1)
	listener := newScriptedChild("listener", 0)

	sup := testSupervisor([]childSpec{{child: source}, {child: listener}})
	sup.Start(context.Background())
	defer sup.Stop()

	// The source fails once; rest-for-one restarts it AND the listener.
	waitForStarts(t, source, 2, 3*time.Second)
	waitForStarts(t, listener, 2, 3*time.Second)
}

func TestSupervisorFailedChildDoesNotRestartEarlier(t *testing.T) {
	source := newScriptedChild("source", 0)
	listener := newScriptedChild("listener", 1)

	sup := testSupervisor([]childSpec{{child: source}, {child: listener}})
	sup.Start(context.Background())
	defer sup.Stop()

	waitForStarts(t, listener, 2, 3*time.Second)
	assert.Equal(t, int32(1), source.starts.Load(), "earlier child untouched")
}

func TestSupervisorStopsAfterRestartLimit(t *testing.T) {
	crashy := newScriptedChild("crashy", 100)

	sup := testSupervisor([]childSpec{{child: crashy}})
	sup.Start(context.Background())

	var sawError, sawEnded bool
	deadline := time.After(10 * time.Second)
	for !sawEnded {
		select {
		case ev, ok := <-sup.Events():
			if !ok {
				sawEnded = true
				break
			}
			switch ev.Type {
			case EventError:
				if ev.Error == ErrTooManyRestarts.Error() {
					sawError = true
				}
			case EventEnded:
				sawEnded = true
			}
		case <-deadline:
			t.Fatal("supervisor did not stop after restart limit")
		}
	}
	require.True(t, sawError)

	// Start count: initial run plus at most maxRestarts restarts.
	assert.LessOrEqual(t, crashy.starts.Load(), int32(maxRestarts+1))
	sup.Wait()
}

func TestSupervisorTransientChildNotRestartedOnCleanExit(t *testing.T) {
	var starts atomic.Int32
	immediate := childFunc{id: "recorder", fn: func(ctx context.Context) error {
		starts.Add(1)
		return nil
	}}

	sup := testSupervisor([]childSpec{{child: immediate, transientOnly: true}})
	sup.Start(context.Background())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), starts.Load(), "clean transient exit is final")
	sup.Stop()
}

type childFunc struct {
	id string
	fn func(ctx context.Context) error
}

func (c childFunc) name() string { return c.id }

func (c childFunc) run(ctx context.Context) error { return c.fn(ctx) }

func TestSupervisorStopWaitsForChildren(t *testing.T) {
	var cleanedUp atomic.Bool
	blocking := childFunc{id: "blocking", fn: func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		cleanedUp.Store(true)
		return nil
	}}

	sup := testSupervisor([]childSpec{{child: blocking}})
	sup.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	sup.Stop()
	assert.True(t, cleanedUp.Load(), "Stop returns only after child cleanup")
}
