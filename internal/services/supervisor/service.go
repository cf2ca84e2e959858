// Package supervisor owns the lifecycle of the application under test:
// launch with the automation channel open, wait for readiness, hand out the
// automation client while running, and guarantee teardown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
	"github.com/ternarybob/shellprobe/internal/services/automation"
)

// HostLogFile is the artifact name holding the application's raw output
const HostLogFile = "host.log"

// ProbeFunc performs the automation transport handshake
type ProbeFunc func(ctx context.Context, host string, port int) (*automation.VersionInfo, error)

// ConnectFunc attaches an automation client to a debugger url
type ConnectFunc func(ctx context.Context, logger arbor.ILogger, opts automation.ConnectOptions) (interfaces.AutomationClient, error)

var errProcessExited = errors.New("application process exited")

// Service implements interfaces.Supervisor
type Service struct {
	config   *common.Config
	logger   arbor.ILogger
	launcher interfaces.ProcessLauncher
	gate     interfaces.ReadinessGate
	probe    ProbeFunc
	connect  ConnectFunc

	mu           sync.Mutex
	artifactsDir string
	proc         interfaces.Process
	client       interfaces.AutomationClient
	window       models.WindowHandle
	running      bool
	stopped      bool
	port         int
	hostLog      *os.File
}

var _ interfaces.Supervisor = (*Service)(nil)

// Option customises a Service
type Option func(*Service)

// WithProbe replaces the transport handshake
func WithProbe(probe ProbeFunc) Option {
	return func(s *Service) { s.probe = probe }
}

// WithConnector replaces the automation client factory
func WithConnector(connect ConnectFunc) Option {
	return func(s *Service) { s.connect = connect }
}

// WithArtifactsDir tees application output into <dir>/host.log
func WithArtifactsDir(dir string) Option {
	return func(s *Service) { s.artifactsDir = dir }
}

// NewService creates a supervisor for the application described by config
func NewService(config *common.Config, logger arbor.ILogger, launcher interfaces.ProcessLauncher, gate interfaces.ReadinessGate, opts ...Option) *Service {
	s := &Service{
		config:   config,
		logger:   logger,
		launcher: launcher,
		gate:     gate,
		probe:    automation.Probe,
		connect: func(ctx context.Context, logger arbor.ILogger, opts automation.ConnectOptions) (interfaces.AutomationClient, error) {
			return automation.Connect(ctx, logger, opts)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the application, completes the automation handshake,
// attaches the client and waits for the embedded engine. A failed Start
// leaves the process registered so Stop can reap it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.proc != nil && !s.stopped {
		s.mu.Unlock()
		return &common.StartupError{Op: "start", Err: errors.New("application already launched")}
	}
	s.stopped = false
	s.running = false
	s.mu.Unlock()

	host := s.config.App.DebugHost
	port := s.config.App.DebugPort
	if port == 0 {
		free, err := freePort(host)
		if err != nil {
			return &common.StartupError{Op: "allocate debugging port", Err: err}
		}
		port = free
	}

	spec := interfaces.LaunchSpec{
		Command: s.config.App.Command,
		Args:    append([]string{"--remote-debugging-port=" + strconv.Itoa(port)}, s.config.App.Args...),
		Env:     envList(s.config.App.Env),
		Dir:     s.config.App.WorkDir,
	}

	hostLog, err := s.openHostLog()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Host log artifact disabled")
	}
	if hostLog != nil {
		spec.Output = hostLog
	}

	s.logger.Info().
		Str("command", spec.Command).
		Strs("args", spec.Args).
		Int("debug_port", port).
		Msg("Launching application")

	proc, err := s.launcher.Launch(ctx, spec)
	if err != nil {
		if hostLog != nil {
			_ = hostLog.Close()
		}
		return &common.StartupError{Op: "launch", Err: err}
	}

	s.mu.Lock()
	s.proc = proc
	s.port = port
	s.hostLog = hostLog
	s.mu.Unlock()

	info, err := s.handshake(ctx, proc, host, port)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("browser", info.Browser).Str("debugger_url", info.WebSocketDebuggerURL).Msg("Automation channel open")

	callTimeout := common.ParseDurationOr(s.config.Timeouts.Call, 10*time.Second)
	connectCtx, cancel := context.WithTimeout(ctx, callTimeout)
	client, err := s.connect(connectCtx, s.logger, automation.ConnectOptions{
		DebuggerURL: info.WebSocketDebuggerURL,
		HostLogs:    proc.OutputLines,
		CallTimeout: callTimeout,
	})
	cancel()
	if err != nil {
		if !common.IsTransport(err) {
			err = &common.TransportError{Op: "connect", Err: err}
		}
		return err
	}

	readyTimeout := common.ParseDurationOr(s.config.Timeouts.Ready, 20*time.Second)
	readyCtx, cancelReady := watchExit(ctx, proc)
	err = s.gate.AwaitEmbeddedReady(readyCtx, client, readyTimeout)
	exitCause := context.Cause(readyCtx)
	cancelReady()
	if err != nil {
		_ = client.Close()
		if errors.Is(exitCause, errProcessExited) {
			return &common.StartupError{Op: "await readiness", Err: exitError(proc)}
		}
		return err
	}

	s.mu.Lock()
	s.client = client
	s.window = client.WindowHandle()
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Int("pid", proc.PID()).Str("window", s.window.String()).Msg("Application ready")
	return nil
}

// handshake polls the automation endpoint until it accepts connections, the
// process exits, or startup_timeout elapses.
func (s *Service) handshake(ctx context.Context, proc interfaces.Process, host string, port int) (*automation.VersionInfo, error) {
	timeout := common.ParseDurationOr(s.config.Timeouts.Startup, 30*time.Second)
	boundCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pollCtx, cancelWatch := watchExit(boundCtx, proc)
	defer cancelWatch()

	var info *automation.VersionInfo
	var lastErr error
	progress := rate.Sometimes{Interval: 5 * time.Second}

	err := common.PollWithBackoff(pollCtx, common.NewBackoff(s.config.Readiness), func(ctx context.Context) (bool, error) {
		v, err := s.probe(ctx, host, port)
		if err != nil {
			lastErr = err
			progress.Do(func() {
				s.logger.Debug().Err(err).Int("port", port).Msg("Waiting for automation channel")
			})
			return false, nil
		}
		info = v
		return true, nil
	})
	if err == nil {
		return info, nil
	}

	switch {
	case errors.Is(context.Cause(pollCtx), errProcessExited):
		return nil, &common.StartupError{Op: "handshake", Err: exitError(proc)}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		var cause error
		if lastErr != nil {
			cause = &common.TransportError{Op: "handshake", Err: lastErr}
		}
		return nil, &common.TimeoutError{Op: "automation handshake", Timeout: timeout.String(), Err: cause}
	}
}

// Stop revokes the client and terminates the application, escalating to a
// force-kill. It is a no-op when nothing is launched or already stopped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	proc := s.proc
	client := s.client
	hostLog := s.hostLog
	if proc == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running = false
	s.client = nil
	s.window = models.WindowHandle{}
	s.hostLog = nil
	s.mu.Unlock()

	defer func() {
		if hostLog != nil {
			_ = hostLog.Close()
		}
	}()

	if client != nil {
		if err := client.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to detach automation client")
		}
	}

	if exited(proc) {
		s.logExit(proc)
		return nil
	}

	stopTimeout := common.ParseDurationOr(s.config.Timeouts.Stop, 10*time.Second)
	killTimeout := common.ParseDurationOr(s.config.Timeouts.Kill, 5*time.Second)

	s.logger.Info().Int("pid", proc.PID()).Msg("Stopping application")
	if err := proc.Terminate(); err != nil {
		s.logger.Warn().Err(err).Int("pid", proc.PID()).Msg("Terminate failed")
	}
	if waitDone(ctx, proc, stopTimeout) {
		s.logExit(proc)
		return nil
	}

	s.logger.Warn().
		Int("pid", proc.PID()).
		Str("stop_timeout", stopTimeout.String()).
		Msg("Application did not exit, force-killing")
	if err := proc.Kill(); err != nil {
		s.logger.Warn().Err(err).Int("pid", proc.PID()).Msg("Kill failed")
	}
	if waitDone(context.Background(), proc, killTimeout) {
		s.logExit(proc)
		return nil
	}

	return &common.ShutdownError{
		PID: proc.PID(),
		Err: fmt.Errorf("still running %s after force-kill", killTimeout),
	}
}

// IsRunning reports whether the application is up and the client is valid
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Client returns the automation client while running
func (s *Service) Client() (interfaces.AutomationClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.client == nil {
		return nil, common.ErrNotRunning
	}
	return s.client, nil
}

// Window returns the application's window handle while running
func (s *Service) Window() (models.WindowHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return models.WindowHandle{}, common.ErrNotRunning
	}
	return s.window, nil
}

// HostLogs returns the application's output, also after Stop
func (s *Service) HostLogs() []string {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil
	}
	return proc.OutputLines()
}

// SetArtifactsDir changes where the next Start writes host.log
func (s *Service) SetArtifactsDir(dir string) {
	s.mu.Lock()
	s.artifactsDir = dir
	s.mu.Unlock()
}

// Port returns the debugging port of the last launch
func (s *Service) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *Service) openHostLog() (*os.File, error) {
	s.mu.Lock()
	dir := s.artifactsDir
	s.mu.Unlock()
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return os.Create(filepath.Join(dir, HostLogFile))
}

func (s *Service) logExit(proc interfaces.Process) {
	code, _ := proc.ExitStatus()
	s.logger.Info().Int("pid", proc.PID()).Int("exit_code", code).Msg("Application stopped")
}

// watchExit derives a context cancelled with errProcessExited when proc exits
func watchExit(ctx context.Context, proc interfaces.Process) (context.Context, context.CancelFunc) {
	watchCtx, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-proc.Done():
			cancel(errProcessExited)
		case <-watchCtx.Done():
		}
	}()
	return watchCtx, func() { cancel(context.Canceled) }
}

func exitError(proc interfaces.Process) error {
	code, _ := proc.ExitStatus()
	return fmt.Errorf("%w with code %d before the automation channel was ready", errProcessExited, code)
}

func exited(proc interfaces.Process) bool {
	select {
	case <-proc.Done():
		return true
	default:
		return false
	}
}

// waitDone waits up to timeout for proc to exit. ctx ending cuts the wait short.
func waitDone(ctx context.Context, proc interfaces.Process, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-proc.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return exited(proc)
	}
}

// freePort asks the OS for an unused TCP port on host
func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}
