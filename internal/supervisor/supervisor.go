package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/harness/internal/history"
	"github.com/loykin/harness/internal/logger"
	"github.com/loykin/harness/internal/metrics"
	"github.com/loykin/harness/internal/probe"
	"github.com/loykin/harness/internal/process"
)

const (
	DefaultProbeTimeout = time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStopTimeout  = 10 * time.Second

	// killReapTimeout bounds how long we wait for the OS to reap a killed server.
	killReapTimeout = 2 * time.Second
	historyTimeout  = 5 * time.Second
)

// Outcome is the successful result of StartIfNeeded.
type Outcome int

const (
	// AlreadyRunning means the endpoint was reachable and nothing was spawned.
	AlreadyRunning Outcome = iota + 1
	// StartedAndReady means a server was spawned and its port opened.
	StartedAndReady
)

func (o Outcome) String() string {
	switch o {
	case AlreadyRunning:
		return "AlreadyRunning"
	case StartedAndReady:
		return "StartedAndReady"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Config describes how the server is launched and how long the supervisor waits.
type Config struct {
	Name         string
	Binary       string
	LeadingArgs  []string
	WorkDir      string
	Env          []string
	Log          logger.Config
	ProbeTimeout time.Duration
	PollInterval time.Duration
	StopTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
}

type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLauncher replaces process.Launch, e.g. with a fake in tests.
func WithLauncher(l process.Launcher) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.launch = l
		}
	}
}

// WithProbe replaces probe.IsOpen.
func WithProbe(p probe.Func) Option {
	return func(s *Supervisor) {
		if p != nil {
			s.probe = p
		}
	}
}

// WithHistory adds sinks that receive a lifecycle event on every start/stop call.
func WithHistory(sinks ...history.Sink) Option {
	return func(s *Supervisor) { s.sinks = append(s.sinks, sinks...) }
}

// Supervisor owns at most one server process it started itself.
//
// It is not safe for concurrent use: StartIfNeeded and StopIfStarted are meant to be
// called in sequence from suite setup and teardown.
type Supervisor struct {
	cfg    Config
	launch process.Launcher
	probe  probe.Func
	log    *slog.Logger
	sinks  []history.Sink

	proc      process.Process // nil when Idle
	endpoint  Endpoint
	startedAt time.Time
	counted   bool // proc is included in the owned gauge
}

// Status is a snapshot of the supervisor's ownership state.
type Status struct {
	Owned     bool      `json:"owned"`
	Alive     bool      `json:"alive"`
	PID       int       `json:"pid,omitempty"`
	URL       string    `json:"url,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

func New(cfg Config, opts ...Option) *Supervisor {
	cfg.applyDefaults()
	s := &Supervisor{
		cfg:    cfg,
		launch: process.Launch,
		probe:  probe.IsOpen,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "supervisor")
	return s
}

// Status reports whether a process is owned and whether it is still running.
func (s *Supervisor) Status() Status {
	if s.proc == nil {
		return Status{}
	}
	return Status{
		Owned:     true,
		Alive:     s.proc.IsAlive(),
		PID:       s.proc.PID(),
		URL:       s.endpoint.URL(),
		StartedAt: s.startedAt,
	}
}

// StartIfNeeded makes sure a server answers on ep, spawning one if the port is closed.
// It blocks for at most wait (plus one poll interval) while the spawned server comes up.
// Failures leave the supervisor without an owned process.
func (s *Supervisor) StartIfNeeded(ep Endpoint, wait time.Duration) (Outcome, error) {
	ep = ep.Normalized()
	if err := ep.Validate(); err != nil {
		return s.failStart(ep, 0, metrics.OutcomeInvalid, err)
	}
	if wait <= 0 {
		return s.failStart(ep, 0, metrics.OutcomeInvalid,
			fmt.Errorf("%w: wait must be positive, got %s", ErrInvalidArgument, wait))
	}

	s.reconcile()

	addr := ep.Address()
	if s.isOpen(ep) {
		s.log.Info("Server already reachable; not starting another", "address", addr, "owned", s.proc != nil)
		pid := 0
		if s.proc != nil {
			pid = s.proc.PID()
		}
		metrics.IncStart(metrics.OutcomeAlreadyRunning)
		s.record(history.EventStart, ep, pid, metrics.OutcomeAlreadyRunning, nil)
		return AlreadyRunning, nil
	}

	spec := s.spec(ep)
	s.log.Info("Starting server", "command", spec.CommandLine(), "wait", wait)
	proc, err := s.launch(spec)
	if err != nil {
		return s.failStart(ep, 0, metrics.OutcomeLaunchError, fmt.Errorf("%w: %w", ErrLaunch, err))
	}
	s.own(proc, ep)

	deadline := s.startedAt.Add(wait)
	for time.Now().Before(deadline) {
		if !proc.IsAlive() {
			s.release()
			return s.failStart(ep, proc.PID(), metrics.OutcomeDied,
				fmt.Errorf("%w: pid %d exited before %s accepted connections", ErrProcessDied, proc.PID(), addr))
		}
		if s.isOpen(ep) {
			took := time.Since(s.startedAt)
			s.log.Info("Server ready", "url", ep.URL(), "pid", proc.PID(), "took", took.Round(time.Millisecond))
			metrics.IncStart(metrics.OutcomeStarted)
			metrics.ObserveReady(took.Seconds())
			s.record(history.EventStart, ep, proc.PID(), metrics.OutcomeStarted, nil)
			return StartedAndReady, nil
		}
		time.Sleep(s.cfg.PollInterval)
	}

	if err := proc.Kill(); err != nil {
		s.log.Error("Failed to kill server after start timeout", "pid", proc.PID(), "error", err)
	} else if !proc.Wait(killReapTimeout) {
		s.log.Warn("Killed server has not exited yet", "pid", proc.PID())
	}
	s.release()
	return s.failStart(ep, proc.PID(), metrics.OutcomeTimeout,
		fmt.Errorf("%w: %s not reachable after %s", ErrStartTimeout, addr, wait))
}

// StopIfStarted stops the process this supervisor started, if any: graceful
// termination first, then a kill once the stop timeout elapses. It never fails;
// problems are logged. The owned handle is always released.
func (s *Supervisor) StopIfStarted() {
	if s.proc == nil {
		s.log.Info("No server process was started by this supervisor")
		metrics.IncStop(metrics.StopNoop)
		return
	}
	proc, ep := s.proc, s.endpoint
	defer s.release()

	mode := metrics.StopGraceful
	var stopErr error
	s.log.Info("Terminating server", "pid", proc.PID())
	if err := proc.Terminate(); err != nil {
		s.log.Warn("Terminate signal failed", "pid", proc.PID(), "error", err)
	}
	if !proc.Wait(s.cfg.StopTimeout) {
		mode = metrics.StopForced
		s.log.Info("Server did not exit gracefully, killing it", "pid", proc.PID(), "timeout", s.cfg.StopTimeout)
		if err := proc.Kill(); err != nil {
			stopErr = err
			s.log.Error("Failed to kill server", "pid", proc.PID(), "error", err)
		} else if !proc.Wait(killReapTimeout) {
			s.log.Warn("Killed server has not exited yet", "pid", proc.PID())
		}
	}
	metrics.IncStop(mode)
	s.record(history.EventStop, ep, proc.PID(), mode, stopErr)
}

// reconcile drops a handle whose process has already exited on its own.
func (s *Supervisor) reconcile() {
	if s.proc != nil && !s.proc.IsAlive() {
		s.log.Warn("Owned server exited on its own; releasing handle", "pid", s.proc.PID())
		s.release()
	}
}

func (s *Supervisor) own(p process.Process, ep Endpoint) {
	s.proc = p
	s.endpoint = ep
	s.startedAt = time.Now()
	s.counted = metrics.IncOwned()
}

func (s *Supervisor) release() {
	s.proc = nil
	s.endpoint = Endpoint{}
	s.startedAt = time.Time{}
	metrics.DecOwned(s.counted)
	s.counted = false
}

func (s *Supervisor) isOpen(ep Endpoint) bool {
	open := s.probe(ep.Host, ep.Port, s.cfg.ProbeTimeout)
	metrics.IncProbe(open)
	return open
}

func (s *Supervisor) spec(ep Endpoint) process.Spec {
	return process.Spec{
		Name:        s.cfg.Name,
		Binary:      s.cfg.Binary,
		LeadingArgs: s.cfg.LeadingArgs,
		Address:     ep.Host,
		Port:        ep.Port,
		BasePath:    ep.BasePath,
		WorkDir:     s.cfg.WorkDir,
		Env:         s.cfg.Env,
		Log:         s.cfg.Log,
	}
}

func (s *Supervisor) failStart(ep Endpoint, pid int, outcome string, err error) (Outcome, error) {
	s.log.Error("Server start failed", "address", ep.Address(), "outcome", outcome, "error", err)
	metrics.IncStart(outcome)
	s.record(history.EventStart, ep, pid, outcome, err)
	return 0, err
}

// record forwards a lifecycle event to the history sinks. Sink failures are only logged.
func (s *Supervisor) record(t history.EventType, ep Endpoint, pid int, outcome string, opErr error) {
	if len(s.sinks) == 0 {
		return
	}
	rec := history.Record{
		Name:     (&process.Spec{Name: s.cfg.Name}).ProcessName(),
		PID:      pid,
		Endpoint: ep.URL(),
		Outcome:  outcome,
	}
	if opErr != nil {
		rec.Error = opErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := history.Fanout(ctx, s.sinks, history.Event{Type: t, OccurredAt: time.Now(), Record: rec}); err != nil {
		s.log.Warn("Failed to record history event", "event", t, "error", err)
	}
}
