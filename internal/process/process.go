package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Process is the capability set the supervisor needs from a running server.
// Implementations must tolerate calls after the process has exited.
type Process interface {
	PID() int
	// IsAlive reports, without blocking, whether the process has not yet exited.
	IsAlive() bool
	// Terminate asks the process to exit.
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
	// Wait blocks up to timeout for the process to exit and reports whether it did.
	Wait(timeout time.Duration) bool
}

// Launcher starts a process for spec.
type Launcher func(spec Spec) (Process, error)

// Proc is an exec-backed Process. A single monitor goroutine owns cmd.Wait.
type Proc struct {
	cmd     *exec.Cmd
	done    chan struct{} // closed by monitor when cmd.Wait returns
	closers []io.Closer

	mu      sync.Mutex
	exitErr error
}

var _ Process = (*Proc)(nil)

// Launch is a Launcher backed by Start.
func Launch(spec Spec) (Process, error) {
	p, err := Start(spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Start configures and starts the command described by spec.
// Server output goes to rotating files when spec.Log captures it, otherwise to the
// server console (see attachConsole).
func Start(spec Spec) (*Proc, error) {
	cmd := spec.BuildCommand()
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	configureSysProcAttr(cmd)

	p := &Proc{cmd: cmd, done: make(chan struct{})}
	if spec.Log.Captures() {
		outW, errW, err := spec.Log.ProcessWriters(spec.ProcessName())
		if err != nil {
			return nil, err
		}
		cmd.Stdout, cmd.Stderr = orDevNull(outW), orDevNull(errW)
		for _, w := range []io.WriteCloser{outW, errW} {
			if w != nil {
				p.closers = append(p.closers, w)
			}
		}
	} else {
		attachConsole(cmd)
	}

	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	go p.monitor()
	return p, nil
}

func (p *Proc) monitor() {
	err := p.cmd.Wait()
	p.closeWriters()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

func (p *Proc) closeWriters() {
	for _, c := range p.closers {
		_ = c.Close()
	}
	p.closers = nil
}

func (p *Proc) PID() int { return p.cmd.Process.Pid }

func (p *Proc) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Proc) Terminate() error {
	if !p.IsAlive() {
		return nil
	}
	return ignoreGone(terminateProcess(p.PID()))
}

func (p *Proc) Kill() error {
	if !p.IsAlive() {
		return nil
	}
	return ignoreGone(killProcess(p.PID()))
}

func (p *Proc) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return !p.IsAlive()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

// ExitErr returns the error reported by cmd.Wait; nil while running or on a clean exit.
func (p *Proc) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func orDevNull(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// ignoreGone treats "process already finished" as success; the exit raced the signal.
func ignoreGone(err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) || isNoSuchProcess(err) {
		return nil
	}
	return err
}
