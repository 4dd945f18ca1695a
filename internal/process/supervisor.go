package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/nerrad567/twc-director/internal/infrastructure/config"
)

// Status represents the current state of the gateway process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// ExitConfigError is the exit code the gateway uses for a bad interface or
// flag. Restarting cannot fix it.
const ExitConfigError = 2

const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableThreshold = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	// Binary is the path to the gateway executable.
	Binary string

	// Interface is the RS485 device name under /dev. When set the gateway
	// is started with --interface /dev/<Interface>.
	Interface string

	// Args are appended after the interface flag.
	Args []string

	// Env are extra KEY=value pairs added to the inherited environment.
	Env []string

	RestartOnFailure bool

	// RestartDelay is the first backoff interval; MaxRestartDelay caps it.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long the gateway must run before the backoff
	// resets.
	StableThreshold time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// OptionsFromConfig maps the twc.gateway config section to Options.
func OptionsFromConfig(cfg config.GatewayConfig, iface string) Options {
	return Options{
		Binary:             cfg.Binary,
		Interface:          iface,
		Args:               cfg.Args,
		RestartOnFailure:   cfg.RestartOnFailure,
		RestartDelay:       time.Duration(cfg.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics counts restarts. *metrics.Metrics implements it.
type Metrics interface {
	RecordGatewayRestart()
}

// Supervisor runs the RS485 gateway as a child process and restarts it
// with exponential backoff when it dies.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Supervisor struct {
	opts    Options
	logger  Logger
	metrics Metrics

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	stop          chan struct{}
	done          chan struct{}
}

// NewSupervisor applies defaults to opts and returns a stopped Supervisor.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Binary == "" {
		return nil, errors.New("process: gateway binary is required")
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = defaultRestartDelay
	}
	if opts.MaxRestartDelay <= 0 {
		opts.MaxRestartDelay = defaultMaxRestartDelay
	}
	if opts.MaxRestartDelay < opts.RestartDelay {
		opts.MaxRestartDelay = opts.RestartDelay
	}
	if opts.StableThreshold <= 0 {
		opts.StableThreshold = defaultStableThreshold
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = defaultGracefulTimeout
	}
	return &Supervisor{
		opts:   opts,
		logger: noopLogger{},
		status: StatusStopped,
	}, nil
}

// SetLogger sets the logger for lifecycle events and gateway output.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetMetrics sets the restart counter.
func (s *Supervisor) SetMetrics(m Metrics) {
	s.metrics = m
}

// commandArgs builds the gateway command line.
func (s *Supervisor) commandArgs() []string {
	var args []string
	if s.opts.Interface != "" {
		args = append(args, "--interface", "/dev/"+s.opts.Interface)
	}
	return append(args, s.opts.Args...)
}

// Start launches the gateway and begins supervising it. ctx bounds the
// whole supervision; cancelling it kills the process.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return errors.New("process: gateway is already running")
	}
	s.status = StatusStarting
	s.stopRequested = false
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.launch(ctx); err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.lastError = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.supervise(ctx)
	return nil
}

func (s *Supervisor) launch(ctx context.Context) error {
	args := s.commandArgs()
	s.logger.Info("starting gateway", "binary", s.opts.Binary, "args", args)

	cmd := exec.CommandContext(ctx, s.opts.Binary, args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.opts.Env != nil {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	go s.capture("stdout", stdout)
	go s.capture("stderr", stderr)

	s.logger.Info("gateway started", "pid", cmd.Process.Pid)
	return nil
}

// capture logs the gateway's output line by line.
func (s *Supervisor) capture(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("gateway output", "stream", stream, "line", scanner.Text())
	}
}

func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RestartDelay
	b.MaxInterval = s.opts.MaxRestartDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// supervise waits for each run to end and decides whether to restart.
func (s *Supervisor) supervise(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		if s.stopRequested {
			s.status = StatusStopped
		}
		done := s.done
		s.mu.Unlock()
		close(done)
	}()
	delays := s.newBackOff()

	for {
		s.mu.RLock()
		cmd, started := s.cmd, s.startTime
		s.mu.RUnlock()

		err := cmd.Wait()
		ran := time.Since(started)

		s.mu.Lock()
		stopRequested := s.stopRequested
		if stopRequested {
			s.status = StatusStopped
		} else {
			s.status = StatusFailed
			s.lastError = err
		}
		s.mu.Unlock()

		if stopRequested {
			s.logger.Info("gateway stopped")
			return
		}
		if ctx.Err() != nil {
			s.logger.Info("gateway stopped with context", "error", ctx.Err())
			return
		}

		s.logger.Warn("gateway exited unexpectedly", "error", err, "ran", ran)
		if !s.opts.RestartOnFailure {
			return
		}
		if !IsRecoverable(err) {
			s.logger.Error("gateway exited with a configuration error, not restarting", "error", err)
			return
		}

		if ran >= s.opts.StableThreshold {
			delays.Reset()
		}

		s.mu.Lock()
		s.restartCount++
		attempt := s.restartCount
		s.mu.Unlock()

		if s.opts.MaxRestartAttempts > 0 && attempt > s.opts.MaxRestartAttempts {
			s.logger.Error("max gateway restart attempts reached", "attempts", attempt-1)
			return
		}

		delay := delays.NextBackOff()
		s.logger.Info("restarting gateway", "attempt", attempt, "delay", delay)
		if s.metrics != nil {
			s.metrics.RecordGatewayRestart()
		}

		for {
			if !s.sleep(ctx, delay) {
				return
			}
			err := s.launch(ctx)
			if err == nil {
				break
			}
			s.logger.Error("failed to restart gateway", "error", err)
			delay = delays.NextBackOff()
		}
	}
}

// sleep waits for d unless ctx ends or Stop is called first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	s.mu.RLock()
	stop := s.stop
	s.mu.RUnlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

// IsRecoverable reports whether a gateway exit is worth a restart. Only
// ExitConfigError is permanent.
func IsRecoverable(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() != ExitConfigError
	}
	return true
}

// Stop sends SIGTERM to the gateway's process group, then SIGKILL after
// GracefulTimeout.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	if !s.stopRequested {
		s.stopRequested = true
		close(s.stop)
	}
	cmd, done, status := s.cmd, s.done, s.status
	s.mu.Unlock()

	if status != StatusRunning || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping gateway", "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM to gateway", "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.opts.GracefulTimeout):
		s.logger.Warn("gateway ignored SIGTERM, sending SIGKILL", "timeout", s.opts.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing gateway: %w", err)
	}
	<-done
	return nil
}

// Status returns the current status of the gateway process.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RestartCount returns how many times the gateway has been restarted.
func (s *Supervisor) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// Stats is a point-in-time view of the supervised gateway.
type Stats struct {
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the gateway process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Status: s.status, RestartCount: s.restartCount}
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		stats.PID = s.cmd.Process.Pid
		stats.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
