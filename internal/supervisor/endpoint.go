package supervisor

import (
	"fmt"
	"strings"

	"github.com/loykin/harness/internal/probe"
)

// Endpoint is where the automation server listens.
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	BasePath string `json:"base_path"`
}

// NormalizeBasePath trims whitespace and ensures a non-empty path starts with "/".
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Normalized returns a copy with a trimmed host and normalized base path.
func (e Endpoint) Normalized() Endpoint {
	e.Host = strings.TrimSpace(e.Host)
	e.BasePath = NormalizeBasePath(e.BasePath)
	return e
}

// Validate checks the host is set and the port is a usable TCP port.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidArgument)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1..65535", ErrInvalidArgument, e.Port)
	}
	return nil
}

// Address is host:port.
func (e Endpoint) Address() string { return probe.Address(e.Host, e.Port) }

// URL is the server URL clients connect to, e.g. http://127.0.0.1:4723/wd/hub.
func (e Endpoint) URL() string {
	return "http://" + e.Address() + NormalizeBasePath(e.BasePath)
}
