package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/echonote-ai/echonote/pkg/capture"
)

// ErrTooManyRestarts ends a session whose children keep failing.
var ErrTooManyRestarts = errors.New("session: restart limit exceeded")

const (
	maxRestarts     = 3
	restartWindow   = 15 * time.Second
	restartResetAge = 30 * time.Second
	listenerBackoff = 500 * time.Millisecond
)

// child is one supervised component.
type child interface {
	name() string
	run(ctx context.Context) error
}

type childSpec struct {
	child child
	// backoff returns the delay before restart number count (1-based).
	backoff func(count int) time.Duration
	// transientOnly restarts the child only after a failure, not a clean exit.
	transientOnly bool
}

// Supervisor runs the session's actor tree: source → listener → optional
// recorder, rest-for-one. When a child dies, it and every child after it are
// restarted; more than three restarts inside fifteen seconds stop the
// session, and a quiet half minute resets the ledger.
type Supervisor struct {
	sctx   Context
	mode   ChannelMode
	emit   *emitter
	logger *log.Logger
	specs  []childSpec
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor assembles the tree. The capture engine is borrowed, not
// owned: several sessions may share one.
func NewSupervisor(params SessionParams, dataDir string, engine *capture.Engine, state capture.DeviceState, logger *log.Logger) *Supervisor {
	sctx := Context{
		Params:           params,
		DataDir:          dataDir,
		StartedAtInstant: time.Now(),
		StartedAtSystem:  time.Now(),
	}
	mode := DetermineChannelMode(params.Onboarding, state)
	emit := newEmitter(params.SessionID)
	logger = logger.WithPrefix("session").With("session_id", params.SessionID)

	listener := newListenerChild(sctx, mode, emit, logger)

	var recorder *recorderChild
	var recorderSinkRef recorderSink
	if params.RecordEnabled {
		recorder = newRecorderChild(sctx, logger)
		recorderSinkRef = recorder
	}

	pipe := newPipeline(mode, listener, recorderSinkRef, emit, logger)
	source := newSourceChild(sctx, mode, engine, pipe, logger)

	specs := []childSpec{
		{child: source},
		{child: listener, backoff: func(count int) time.Duration {
			if count <= 1 {
				return 0
			}
			return listenerBackoff
		}},
	}
	if recorder != nil {
		specs = append(specs, childSpec{child: recorder, transientOnly: true})
	}

	return &Supervisor{
		sctx:   sctx,
		mode:   mode,
		emit:   emit,
		logger: logger,
		specs:  specs,
		done:   make(chan struct{}),
	}
}

func (s *Supervisor) Mode() ChannelMode { return s.mode }

func (s *Supervisor) Events() <-chan Event { return s.emit.ch }

// Start launches the tree. Events stream until the session ends; the channel
// closes after EventEnded.
func (s *Supervisor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.supervise(runCtx)
}

// Stop asks every child to wind down and waits for the tree to exit. The
// listener finalises and drains; the recorder flushes and transcodes.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Wait blocks until the session has fully ended.
func (s *Supervisor) Wait() { <-s.done }

type childExit struct {
	index int
	err   error
}

func (s *Supervisor) supervise(ctx context.Context) {
	defer close(s.done)
	defer s.emit.close()
	defer s.emit.emit(Event{Type: EventEnded})

	type childRuntime struct {
		cancel   context.CancelFunc
		done     chan struct{}
		restarts int
		windowAt time.Time
	}

	exits := make(chan childExit, len(s.specs))
	runtimes := make([]*childRuntime, len(s.specs))

	start := func(i int) {
		childCtx, childCancel := context.WithCancel(ctx)
		rt := runtimes[i]
		if rt == nil {
			rt = &childRuntime{}
			runtimes[i] = rt
		}
		rt.cancel = childCancel
		rt.done = make(chan struct{})

		spec := s.specs[i]
		go func(i int, done chan struct{}) {
			defer close(done)
			err := spec.child.run(childCtx)
			select {
			case exits <- childExit{index: i, err: err}:
			case <-ctx.Done():
				// Shutdown path: run() already honoured the cancellation.
				exits <- childExit{index: i, err: err}
			}
		}(i, rt.done)
	}

	for i := range s.specs {
		start(i)
	}

	running := len(s.specs)
	for {
		select {
		case <-ctx.Done():
			// Wait for every child to finish its shutdown work.
			for _, rt := range runtimes {
				if rt != nil {
					<-rt.done
				}
			}
			return

		case exit := <-exits:
			if ctx.Err() != nil {
				running--
				if running == 0 {
					return
				}
				continue
			}

			spec := s.specs[exit.index]
			rt := runtimes[exit.index]

			if exit.err != nil {
				s.logger.Warn("child exited with error", "child", spec.child.name(), "error", exit.err)
			} else {
				s.logger.Info("child exited", "child", spec.child.name())
			}

			if spec.transientOnly && exit.err == nil {
				continue
			}

			// Sliding restart window with quiet-period reset.
			now := time.Now()
			if rt.windowAt.IsZero() || now.Sub(rt.windowAt) > restartResetAge {
				rt.restarts = 0
				rt.windowAt = now
			}
			if now.Sub(rt.windowAt) <= restartWindow {
				rt.restarts++
			} else {
				rt.restarts = 1
				rt.windowAt = now
			}
			if rt.restarts > maxRestarts {
				s.logger.Error("restart limit exceeded, stopping session", "child", spec.child.name())
				s.emit.emit(Event{Type: EventError, Error: ErrTooManyRestarts.Error()})
				s.cancel()
				continue
			}

			if spec.backoff != nil {
				if delay := spec.backoff(rt.restarts); delay > 0 {
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						continue
					}
				}
			}

			// Rest-for-one: restart the failed child and everything after it.
			for i := exit.index + 1; i < len(s.specs); i++ {
				if later := runtimes[i]; later != nil && later.cancel != nil {
					later.cancel()
					<-later.done
					drainExit(exits, i)
				}
			}
			s.logger.Info("restarting children", "from", spec.child.name(), "attempt", rt.restarts)
			for i := exit.index; i < len(s.specs); i++ {
				start(i)
			}
		}
	}
}

// drainExit removes the pending exit notification of a deliberately stopped
// child so it is not mistaken for a fresh failure.
func drainExit(exits chan childExit, index int) {
	for {
		select {
		case exit := <-exits:
			if exit.index == index {
				return
			}
			// Not ours; put it back.
			exits <- exit
		default:
			return
		}
	}
}

// Describe renders the session for logs.
func (s *Supervisor) Describe() string {
	return fmt.Sprintf("session %s mode=%s children=%d", s.sctx.Params.SessionID, s.mode, len(s.specs))
}
