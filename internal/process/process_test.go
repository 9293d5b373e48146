//go:build !windows

package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/harness/internal/logger"
)

// shSpec runs script through /bin/sh; the server arguments land in $0.. and are ignored.
func shSpec(script string) Spec {
	return Spec{
		Binary:      "/bin/sh",
		LeadingArgs: []string{"-c", script},
		Address:     "127.0.0.1",
		Port:        1,
	}
}

func TestStartTerminate(t *testing.T) {
	p, err := Start(shSpec("sleep 5"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.PID() <= 0 || !p.IsAlive() {
		t.Fatalf("expected running process, pid=%d", p.PID())
	}
	if err := p.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if !p.Wait(2 * time.Second) {
		_ = p.Kill()
		t.Fatalf("process did not exit after SIGTERM")
	}
	if p.IsAlive() {
		t.Fatalf("IsAlive must be false after exit")
	}
	// calls after exit are harmless
	if err := p.Terminate(); err != nil {
		t.Fatalf("terminate after exit: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill after exit: %v", err)
	}
}

func TestKillAfterIgnoredTerm(t *testing.T) {
	p, err := Start(shSpec(`trap "" TERM; sleep 5`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// give the shell a moment to install the trap
	time.Sleep(100 * time.Millisecond)
	_ = p.Terminate()
	if p.Wait(300 * time.Millisecond) {
		t.Fatalf("process should ignore SIGTERM")
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if !p.Wait(2 * time.Second) {
		t.Fatalf("process survived SIGKILL")
	}
}

func TestExitIsObserved(t *testing.T) {
	p, err := Start(shSpec("exit 3"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Wait(2 * time.Second) {
		t.Fatalf("expected quick exit")
	}
	if p.ExitErr() == nil {
		t.Fatalf("expected non-nil exit error for status 3")
	}
	if p.Wait(0) != true {
		t.Fatalf("Wait(0) should report exited process")
	}
}

func TestStartCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	spec := shSpec("echo hello-out; echo hello-err 1>&2")
	spec.Name = "cap"
	spec.Log = logger.Config{File: logger.FileConfig{Dir: dir}}
	p, err := Start(spec)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Wait(2 * time.Second) {
		t.Fatalf("process did not exit")
	}
	ob, err := os.ReadFile(filepath.Join(dir, "cap.stdout.log"))
	if err != nil || !strings.Contains(string(ob), "hello-out") {
		t.Fatalf("stdout not captured: %q %v", ob, err)
	}
	eb, err := os.ReadFile(filepath.Join(dir, "cap.stderr.log"))
	if err != nil || !strings.Contains(string(eb), "hello-err") {
		t.Fatalf("stderr not captured: %q %v", eb, err)
	}
}

func TestStartEnvAndSysProcAttr(t *testing.T) {
	dir := t.TempDir()
	spec := shSpec(`echo "$HARNESS_ECHO"`)
	spec.Name = "env"
	spec.Env = []string{"HARNESS_ECHO=forty-two"}
	spec.Log = logger.Config{File: logger.FileConfig{Dir: dir}}
	p, err := Start(spec)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.cmd.SysProcAttr == nil || !p.cmd.SysProcAttr.Setpgid {
		t.Fatalf("Setpgid not configured")
	}
	if !p.Wait(2 * time.Second) {
		t.Fatalf("process did not exit")
	}
	b, _ := os.ReadFile(filepath.Join(dir, "env.stdout.log"))
	if strings.TrimSpace(string(b)) != "forty-two" {
		t.Fatalf("env not passed through: %q", b)
	}
}

func TestStartWithoutCaptureSharesParentConsole(t *testing.T) {
	p, err := Start(shSpec("exit 0"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Wait(2 * time.Second) {
		t.Fatalf("process did not exit")
	}
	if p.cmd.Stdout != os.Stdout || p.cmd.Stderr != os.Stderr {
		t.Fatalf("uncaptured output must go to the parent terminal")
	}
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Launch(Spec{Binary: filepath.Join(t.TempDir(), "no-such-binary"), Address: "127.0.0.1", Port: 1})
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
}
