package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
	"github.com/ternarybob/shellprobe/internal/services/automation"
)

// mockProcess simulates the application process
type mockProcess struct {
	mu             sync.Mutex
	done           chan struct{}
	closed         bool
	code           int
	ignoreTerm     bool
	ignoreKill     bool
	terminateCalls int
	killCalls      int
	lines          []string
}

func newMockProcess() *mockProcess {
	return &mockProcess{done: make(chan struct{}), lines: []string{"main: ready"}}
}

func (p *mockProcess) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.code = code
	close(p.done)
}

func (p *mockProcess) PID() int { return 4242 }

func (p *mockProcess) Terminate() error {
	p.mu.Lock()
	p.terminateCalls++
	ignore := p.ignoreTerm
	p.mu.Unlock()
	if !ignore {
		p.exit(0)
	}
	return nil
}

func (p *mockProcess) Kill() error {
	p.mu.Lock()
	p.killCalls++
	ignore := p.ignoreKill
	p.mu.Unlock()
	if !ignore {
		p.exit(-1)
	}
	return nil
}

func (p *mockProcess) Done() <-chan struct{} { return p.done }

func (p *mockProcess) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.closed
}

func (p *mockProcess) OutputLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func (p *mockProcess) counts() (terminate, kill int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminateCalls, p.killCalls
}

// mockLauncher hands out a prepared process and records the spec
type mockLauncher struct {
	proc *mockProcess
	err  error
	spec interfaces.LaunchSpec
}

func (l *mockLauncher) Launch(ctx context.Context, spec interfaces.LaunchSpec) (interfaces.Process, error) {
	l.spec = spec
	if l.err != nil {
		return nil, l.err
	}
	if spec.Output != nil {
		_, _ = spec.Output.Write([]byte("main: booting\n"))
	}
	return l.proc, nil
}

// mockGate returns a fixed result
type mockGate struct {
	err   error
	calls int
}

func (g *mockGate) AwaitEmbeddedReady(ctx context.Context, client interfaces.AutomationClient, timeout time.Duration) error {
	g.calls++
	return g.err
}

// mockClient only tracks Close
type mockClient struct {
	mu     sync.Mutex
	closed int
}

func (c *mockClient) GetWindowCount(ctx context.Context) (int, error)  { return 1, nil }
func (c *mockClient) IsWindowVisible(ctx context.Context) (bool, error) { return true, nil }
func (c *mockClient) FindElement(ctx context.Context, selector string) (*models.ElementHandle, error) {
	return nil, nil
}
func (c *mockClient) GetUIContextLogs(ctx context.Context) ([]models.LogEntry, error) {
	return nil, nil
}
func (c *mockClient) GetHostContextLogs(ctx context.Context) ([]string, error) { return nil, nil }
func (c *mockClient) EvaluateInPage(ctx context.Context, expr string) (any, error) {
	return true, nil
}
func (c *mockClient) WindowHandle() models.WindowHandle {
	return models.WindowHandle{TargetID: "T1", WindowID: 7, Title: "Nyaovim"}
}
func (c *mockClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func okProbe(ctx context.Context, host string, port int) (*automation.VersionInfo, error) {
	return &automation.VersionInfo{Browser: "Chrome", WebSocketDebuggerURL: "ws://127.0.0.1/devtools/browser/x"}, nil
}

func testConfig() *common.Config {
	config := common.NewDefaultConfig()
	config.App.Command = "electron"
	config.Timeouts.Startup = "200ms"
	config.Timeouts.Ready = "200ms"
	config.Timeouts.Stop = "50ms"
	config.Timeouts.Kill = "50ms"
	config.Readiness.InitialInterval = "5ms"
	config.Readiness.MaxInterval = "20ms"
	config.Readiness.Jitter = 0
	return config
}

type fixture struct {
	proc     *mockProcess
	launcher *mockLauncher
	gate     *mockGate
	client   *mockClient
	service  *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		proc:   newMockProcess(),
		gate:   &mockGate{},
		client: &mockClient{},
	}
	f.launcher = &mockLauncher{proc: f.proc}

	base := []Option{
		WithProbe(okProbe),
		WithConnector(func(ctx context.Context, logger arbor.ILogger, opts automation.ConnectOptions) (interfaces.AutomationClient, error) {
			return f.client, nil
		}),
	}
	f.service = NewService(testConfig(), arbor.NewNoOpLogger(), f.launcher, f.gate, append(base, opts...)...)
	return f
}

func TestStart_Success(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.service.Start(context.Background()))
	assert.True(t, f.service.IsRunning())
	assert.Equal(t, 1, f.gate.calls)

	client, err := f.service.Client()
	require.NoError(t, err)
	assert.Same(t, f.client, client)

	window, err := f.service.Window()
	require.NoError(t, err)
	assert.Equal(t, "T1", window.TargetID)

	require.NotEmpty(t, f.launcher.spec.Args)
	assert.True(t, strings.HasPrefix(f.launcher.spec.Args[0], "--remote-debugging-port="))
	assert.NotEqual(t, "--remote-debugging-port=0", f.launcher.spec.Args[0])
	assert.Greater(t, f.service.Port(), 0)
	assert.Equal(t, []string{"."}, f.launcher.spec.Args[1:])
}

func TestStart_WhileRunning(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Start(context.Background()))

	err := f.service.Start(context.Background())
	assert.True(t, common.IsStartup(err))
}

func TestStop_RevokesClientAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Start(context.Background()))

	require.NoError(t, f.service.Stop(context.Background()))
	assert.False(t, f.service.IsRunning())

	_, err := f.service.Client()
	assert.ErrorIs(t, err, common.ErrNotRunning)
	_, err = f.service.Window()
	assert.ErrorIs(t, err, common.ErrNotRunning)

	// Host logs survive teardown
	assert.Equal(t, []string{"main: ready"}, f.service.HostLogs())

	require.NoError(t, f.service.Stop(context.Background()))
	terminate, kill := f.proc.counts()
	assert.Equal(t, 1, terminate)
	assert.Equal(t, 0, kill)
	assert.Equal(t, 1, f.client.closed)
}

func TestStop_WithoutStart(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.service.Stop(context.Background()))
	assert.Nil(t, f.service.HostLogs())
}

func TestStop_EscalatesToKill(t *testing.T) {
	f := newFixture(t)
	f.proc.ignoreTerm = true
	require.NoError(t, f.service.Start(context.Background()))

	require.NoError(t, f.service.Stop(context.Background()))
	terminate, kill := f.proc.counts()
	assert.Equal(t, 1, terminate)
	assert.Equal(t, 1, kill)
}

func TestStop_ShutdownErrorWhenProcessSurvives(t *testing.T) {
	f := newFixture(t)
	f.proc.ignoreTerm = true
	f.proc.ignoreKill = true
	require.NoError(t, f.service.Start(context.Background()))

	err := f.service.Stop(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsShutdown(err))
	assert.False(t, f.service.IsRunning())

	// A second stop never signals again
	require.NoError(t, f.service.Stop(context.Background()))
	terminate, kill := f.proc.counts()
	assert.Equal(t, 1, terminate)
	assert.Equal(t, 1, kill)
}

func TestStart_LaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.launcher.err = errors.New("exec: \"electron\": executable file not found in $PATH")

	err := f.service.Start(context.Background())
	assert.True(t, common.IsStartup(err))
	assert.False(t, f.service.IsRunning())
	assert.NoError(t, f.service.Stop(context.Background()))
}

func TestStart_ProcessExitsBeforeHandshake(t *testing.T) {
	f := newFixture(t, WithProbe(func(ctx context.Context, host string, port int) (*automation.VersionInfo, error) {
		return nil, errors.New("connection refused")
	}))
	f.proc.exit(1)

	err := f.service.Start(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsStartup(err))
	assert.Contains(t, err.Error(), "code 1")
	assert.False(t, f.service.IsRunning())

	require.NoError(t, f.service.Stop(context.Background()))
	terminate, _ := f.proc.counts()
	assert.Equal(t, 0, terminate)
}

func TestStart_HandshakeTimeout(t *testing.T) {
	f := newFixture(t, WithProbe(func(ctx context.Context, host string, port int) (*automation.VersionInfo, error) {
		return nil, errors.New("connection refused")
	}))

	err := f.service.Start(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsTimeout(err))
	assert.True(t, common.IsTransport(err))
	assert.False(t, f.service.IsRunning())

	// The process stays registered so teardown can reap it
	require.NoError(t, f.service.Stop(context.Background()))
	terminate, _ := f.proc.counts()
	assert.Equal(t, 1, terminate)
}

func TestStart_ConnectFailure(t *testing.T) {
	f := newFixture(t, WithConnector(func(ctx context.Context, logger arbor.ILogger, opts automation.ConnectOptions) (interfaces.AutomationClient, error) {
		return nil, errors.New("no window target found")
	}))

	err := f.service.Start(context.Background())
	assert.True(t, common.IsTransport(err))
	assert.False(t, f.service.IsRunning())
	assert.Equal(t, 0, f.gate.calls)
	require.NoError(t, f.service.Stop(context.Background()))
}

func TestStart_ReadinessTimeout(t *testing.T) {
	f := newFixture(t)
	f.gate.err = &common.TimeoutError{Op: "embedded engine readiness", Timeout: "200ms"}

	err := f.service.Start(context.Background())
	assert.True(t, common.IsTimeout(err))
	assert.False(t, f.service.IsRunning())
	assert.Equal(t, 1, f.client.closed)

	_, err = f.service.Client()
	assert.ErrorIs(t, err, common.ErrNotRunning)
	require.NoError(t, f.service.Stop(context.Background()))
}

func TestStart_RestartAfterStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Start(context.Background()))
	require.NoError(t, f.service.Stop(context.Background()))

	f.proc = newMockProcess()
	f.launcher.proc = f.proc
	require.NoError(t, f.service.Start(context.Background()))
	assert.True(t, f.service.IsRunning())
	require.NoError(t, f.service.Stop(context.Background()))
}

func TestStart_WritesHostLogArtifact(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, WithArtifactsDir(dir))

	require.NoError(t, f.service.Start(context.Background()))
	require.NoError(t, f.service.Stop(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, HostLogFile))
	require.NoError(t, err)
	assert.Equal(t, "main: booting\n", string(data))
}

func TestEnvList_Sorted(t *testing.T) {
	assert.Nil(t, envList(nil))
	assert.Equal(t, []string{"A=1", "B=2"}, envList(map[string]string{"B": "2", "A": "1"}))
}
