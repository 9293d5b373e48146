package process

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/loykin/harness/internal/logger"
)

// DefaultBinary is the automation server executable looked up on PATH.
const DefaultBinary = "appium"

// DefaultName is used for log file names when Spec.Name is empty.
const DefaultName = "appium"

// Spec describes how to launch the external automation server.
type Spec struct {
	Name        string        `json:"name"`
	Binary      string        `json:"binary"`       // executable; defaults to DefaultBinary
	LeadingArgs []string      `json:"leading_args"` // inserted before the "server" subcommand, e.g. ["appium"] for npx
	Address     string        `json:"address"`
	Port        int           `json:"port"`
	BasePath    string        `json:"base_path"` // already normalized; omitted from argv when empty
	WorkDir     string        `json:"work_dir"`
	Env         []string      `json:"env"` // extra KEY=VALUE entries appended to the parent env
	Log         logger.Config `json:"log"`
}

// ProcessName returns Name or DefaultName.
func (s *Spec) ProcessName() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return DefaultName
}

// Args returns the argument vector passed to Binary:
//
//	[leading...] server --address <host> --port <port> [--base-path <path>]
func (s *Spec) Args() []string {
	args := make([]string, 0, len(s.LeadingArgs)+7)
	args = append(args, s.LeadingArgs...)
	args = append(args, "server", "--address", s.Address, "--port", strconv.Itoa(s.Port))
	if s.BasePath != "" {
		args = append(args, "--base-path", s.BasePath)
	}
	return args
}

// BuildCommand constructs the *exec.Cmd for this spec. No shell is involved, so
// arguments are never re-parsed.
func (s *Spec) BuildCommand() *exec.Cmd {
	bin := strings.TrimSpace(s.Binary)
	if bin == "" {
		bin = DefaultBinary
	}
	// #nosec G204 -- the binary is operator configuration, not request input
	cmd := exec.Command(bin, s.Args()...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	return cmd
}

// CommandLine renders the command for log output.
func (s *Spec) CommandLine() string {
	return strings.Join(s.BuildCommand().Args, " ")
}
