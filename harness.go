package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/harness/internal/caps"
	"github.com/loykin/harness/internal/config"
	"github.com/loykin/harness/internal/history"
	"github.com/loykin/harness/internal/history/factory"
	"github.com/loykin/harness/internal/logger"
	"github.com/loykin/harness/internal/metrics"
	"github.com/loykin/harness/internal/probe"
	"github.com/loykin/harness/internal/server"
	"github.com/loykin/harness/internal/supervisor"
	"github.com/loykin/harness/internal/users"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Endpoint = supervisor.Endpoint

type Outcome = supervisor.Outcome

type Status = supervisor.Status

type Supervisor = supervisor.Supervisor

type SupervisorConfig = supervisor.Config

type Option = supervisor.Option

type LogConfig = logger.Config

type Config = config.Config

type Caps = caps.Caps

type Credentials = users.Credentials

type Users = users.Store

type HistorySink = history.Sink

// API is the HTTP front of one supervisor; see NewAPI.
type API = server.Router

const (
	AlreadyRunning  = supervisor.AlreadyRunning
	StartedAndReady = supervisor.StartedAndReady
)

var (
	ErrInvalidArgument = supervisor.ErrInvalidArgument
	ErrLaunch          = supervisor.ErrLaunch
	ErrProcessDied     = supervisor.ErrProcessDied
	ErrStartTimeout    = supervisor.ErrStartTimeout
)

var (
	WithLogger   = supervisor.WithLogger
	WithLauncher = supervisor.WithLauncher
	WithProbe    = supervisor.WithProbe
	WithHistory  = supervisor.WithHistory
)

// NewSupervisor returns an Idle supervisor.
func NewSupervisor(c SupervisorConfig, opts ...Option) *Supervisor { return supervisor.New(c, opts...) }

// LoadConfig reads file.env and configs/config.ini under root.
func LoadConfig(root string) (*Config, error) { return config.Load(root) }

// NormalizeBasePath ensures a non-empty path starts with "/".
func NormalizeBasePath(p string) string { return supervisor.NormalizeBasePath(p) }

// IsReachable reports whether ep accepts TCP connections.
func IsReachable(ep Endpoint) bool { return probe.IsOpen(ep.Host, ep.Port, probe.DefaultTimeout) }

// FromConfig builds a supervisor from c. When HARNESS_HISTORY_DSN is set the
// returned sinks are attached to it; close them with CloseHistory.
func FromConfig(c *Config, log *slog.Logger, opts ...Option) (*Supervisor, []HistorySink, error) {
	sc, err := c.Supervisor()
	if err != nil {
		return nil, nil, err
	}
	var sinks []HistorySink
	if dsn := c.HistoryDSN(); dsn != "" {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("history sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	all := append([]Option{WithLogger(log), WithHistory(sinks...)}, opts...)
	return supervisor.New(sc, all...), sinks, nil
}

// CloseHistory closes sinks returned by FromConfig.
func CloseHistory(sinks []HistorySink) error { return history.CloseAll(sinks) }

// NewHistorySink creates a sink from a DSN (sqlite path, postgres:// or clickhouse://).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// LoadCaps returns device caps merged with app caps using the project layout under c.
func LoadCaps(c *Config, log *slog.Logger) (Caps, error) {
	return caps.NewLoader(c, log).Merged()
}

// LoadUsers opens configs/users_config.ini under c's root.
func LoadUsers(c *Config) (*Users, error) {
	return users.Load(c.Path(config.UsersIni))
}

// NewAPI returns the status/start/stop API for sup. With withMetrics the default
// prometheus registry is exposed at /metrics. Stop sup through API.Stop once the
// API is serving.
func NewAPI(basePath string, sup *Supervisor, ep Endpoint, wait time.Duration, withMetrics bool) *API {
	var opts []server.Option
	if withMetrics {
		opts = append(opts, server.WithMetrics(metrics.Handler()))
	}
	return server.NewRouter(sup, ep, wait, basePath, opts...)
}

// NewHandler returns NewAPI's handler, mountable in any mux.
func NewHandler(basePath string, sup *Supervisor, ep Endpoint, wait time.Duration, withMetrics bool) http.Handler {
	return NewAPI(basePath, sup, ep, wait, withMetrics).Handler()
}

// ServeAPI serves api on addr in the background.
func ServeAPI(addr string, api *API) (*http.Server, error) {
	return server.NewServer(addr, api.Handler())
}

// NewHTTPServer serves NewHandler on addr in the background.
func NewHTTPServer(addr, basePath string, sup *Supervisor, ep Endpoint, wait time.Duration, withMetrics bool) (*http.Server, error) {
	return ServeAPI(addr, NewAPI(basePath, sup, ep, wait, withMetrics))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// IsStartFailure reports whether err came from a failed start attempt.
func IsStartFailure(err error) bool {
	return errors.Is(err, ErrLaunch) || errors.Is(err, ErrProcessDied) || errors.Is(err, ErrStartTimeout)
}
