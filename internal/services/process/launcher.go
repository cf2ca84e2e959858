// Package process is the OS process layer: spawn with arguments, send the
// terminate signal, force-kill the process tree and query exit status.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/shellprobe/internal/interfaces"
)

// pipeWaitDelay bounds how long Wait keeps copying output after the process
// exits; grandchildren that inherited stdout would otherwise block it.
const pipeWaitDelay = 2 * time.Second

// Launcher spawns processes with captured output
type Launcher struct {
	logger   arbor.ILogger
	maxLines int
}

// NewLauncher creates a launcher keeping up to maxLines output lines per process
func NewLauncher(logger arbor.ILogger, maxLines int) *Launcher {
	return &Launcher{
		logger:   logger,
		maxLines: maxLines,
	}
}

// Launch starts the process described by spec
func (l *Launcher) Launch(ctx context.Context, spec interfaces.LaunchSpec) (interfaces.Process, error) {
	if spec.Command == "" {
		return nil, errors.New("no command configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buffer := NewLineBuffer(l.maxLines)
	var out io.Writer = buffer
	if spec.Output != nil {
		out = io.MultiWriter(buffer, spec.Output)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = pipeWaitDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}

	p := &osProcess{
		cmd:    cmd,
		output: buffer,
		done:   make(chan struct{}),
		logger: l.logger,
	}
	go p.wait()

	l.logger.Debug().
		Str("command", spec.Command).
		Strs("args", spec.Args).
		Int("pid", cmd.Process.Pid).
		Msg("Process started")

	return p, nil
}

// osProcess is a Process backed by os/exec
type osProcess struct {
	cmd    *exec.Cmd
	output *LineBuffer
	logger arbor.ILogger

	done     chan struct{}
	mu       sync.Mutex
	exitCode int
	exited   bool
	waitErr  error
}

func (p *osProcess) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	p.waitErr = err
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	} else {
		p.exitCode = -1
	}
	code := p.exitCode
	p.mu.Unlock()

	p.logger.Debug().Int("pid", p.PID()).Int("exit_code", code).Msg("Process exited")
	close(p.done)
}

func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}

// Terminate sends SIGTERM. Windows has no terminate signal, so it kills.
func (p *osProcess) Terminate() error {
	if p.hasExited() {
		return nil
	}
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to send terminate signal: %w", err)
	}
	return nil
}

// Kill force-kills every descendant and then the process itself
func (p *osProcess) Kill() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, child := range descendants(ctx, int32(p.PID())) {
		if err := child.KillWithContext(ctx); err != nil {
			p.logger.Debug().Err(err).Int("pid", int(child.Pid)).Msg("Failed to kill child process")
		}
	}

	if p.hasExited() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	return nil
}

func (p *osProcess) Done() <-chan struct{} {
	return p.done
}

func (p *osProcess) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exited
}

func (p *osProcess) OutputLines() []string {
	return p.output.Lines()
}

func (p *osProcess) hasExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}
