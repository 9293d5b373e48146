package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/harness/internal/history"
	"github.com/loykin/harness/internal/process"
)

// fakeProc is an in-memory process.Process. exitAt, when set, makes the process
// exit on its own at that time.
type fakeProc struct {
	mu         sync.Mutex
	pid        int
	exited     bool
	exitAt     time.Time
	ignoreTerm bool
	terms      int
	kills      int
}

func (f *fakeProc) PID() int { return f.pid }

func (f *fakeProc) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exitAt.IsZero() && !time.Now().Before(f.exitAt) {
		f.exited = true
	}
	return !f.exited
}

func (f *fakeProc) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terms++
	if !f.ignoreTerm {
		f.exited = true
	}
	return nil
}

func (f *fakeProc) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills++
	f.exited = true
	return nil
}

func (f *fakeProc) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !f.IsAlive() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeProc) exit() {
	f.mu.Lock()
	f.exited = true
	f.mu.Unlock()
}

func (f *fakeProc) counts() (terms, kills int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terms, f.kills
}

// fakeLauncher hands out procs built by next and remembers the specs it saw.
type fakeLauncher struct {
	mu    sync.Mutex
	specs []process.Spec
	procs []*fakeProc
	err   error
	next  func() *fakeProc
}

func (l *fakeLauncher) Launch(spec process.Spec) (process.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return nil, l.err
	}
	p := &fakeProc{pid: 1000 + len(l.specs)}
	if l.next != nil {
		p = l.next()
		p.pid = 1000 + len(l.specs)
	}
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.specs)
}

// fakePort opens at a configurable time; zero openAt with open=false means never.
type fakePort struct {
	open   atomic.Bool
	openAt atomic.Int64 // unix nanos; 0 = unset
	calls  atomic.Int32
}

func (p *fakePort) probe(_ string, _ int, _ time.Duration) bool {
	p.calls.Add(1)
	if p.open.Load() {
		return true
	}
	if at := p.openAt.Load(); at != 0 && time.Now().UnixNano() >= at {
		return true
	}
	return false
}

func (p *fakePort) openAfter(d time.Duration) { p.openAt.Store(time.Now().Add(d).UnixNano()) }

type memSink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memSink) snapshot() []history.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Event(nil), m.events...)
}

var errNoBinary = errors.New("exec: \"appium\": executable file not found in $PATH")
