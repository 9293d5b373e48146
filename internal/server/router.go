package server

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/harness/internal/probe"
	"github.com/loykin/harness/internal/supervisor"
)

// Supervisor is the part of *supervisor.Supervisor the router drives.
type Supervisor interface {
	StartIfNeeded(ep supervisor.Endpoint, wait time.Duration) (supervisor.Outcome, error)
	StopIfStarted()
	Status() supervisor.Status
}

// Router exposes one supervisor over HTTP.
// Endpoints:
//
//	GET  {basePath}/status             ownership plus a live reachability probe
//	POST {basePath}/start?wait=20s     StartIfNeeded on the configured endpoint
//	POST {basePath}/stop               StopIfStarted
//	GET  /metrics                      when a metrics handler is set
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      Supervisor
	endpoint supervisor.Endpoint
	wait     time.Duration
	basePath string
	metrics  http.Handler
	probe    probe.Func

	// supervisor calls are serialized; handlers run concurrently
	mu sync.Mutex
}

type Option func(*Router)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option { return func(r *Router) { r.metrics = h } }

// WithProbe replaces probe.IsOpen for the status endpoint.
func WithProbe(p probe.Func) Option {
	return func(r *Router) {
		if p != nil {
			r.probe = p
		}
	}
}

// NewRouter constructs a Router managing the server at ep. wait is the default
// readiness deadline for /start.
func NewRouter(sup Supervisor, ep supervisor.Endpoint, wait time.Duration, basePath string, opts ...Option) *Router {
	r := &Router{
		sup:      sup,
		endpoint: ep.Normalized(),
		wait:     wait,
		basePath: sanitizeBase(basePath),
		probe:    probe.IsOpen,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// Stop runs StopIfStarted once no request is inside the supervisor. Owners of
// the router use it on shutdown so an in-flight /start completes first.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sup.StopIfStarted()
}

// NewServer listens on addr and serves h in the background.
func NewServer(addr string, h http.Handler) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// start requests block until the server is ready
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startResp struct {
	Outcome string `json:"outcome"`
	URL     string `json:"url"`
}

type statusResp struct {
	supervisor.Status
	Endpoint  string `json:"endpoint"`
	Reachable bool   `json:"reachable"`
}

func (r *Router) handleStatus(c *gin.Context) {
	r.mu.Lock()
	st := r.sup.Status()
	r.mu.Unlock()
	writeJSON(c, http.StatusOK, statusResp{
		Status:    st,
		Endpoint:  r.endpoint.URL(),
		Reachable: r.probe(r.endpoint.Host, r.endpoint.Port, probe.DefaultTimeout),
	})
}

func (r *Router) handleStart(c *gin.Context) {
	wait := r.wait
	if s := c.Query("wait"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid wait: " + s})
			return
		}
		wait = d
	}
	r.mu.Lock()
	out, err := r.sup.StartIfNeeded(r.endpoint, wait)
	r.mu.Unlock()
	if err != nil {
		writeJSON(c, startErrorCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, startResp{Outcome: out.String(), URL: r.endpoint.URL()})
}

func (r *Router) handleStop(c *gin.Context) {
	r.mu.Lock()
	r.sup.StopIfStarted()
	r.mu.Unlock()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func startErrorCode(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrStartTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, supervisor.ErrProcessDied), errors.Is(err, supervisor.ErrLaunch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
