package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/loykin/harness/internal/logger"
	"github.com/loykin/harness/internal/supervisor"
)

// Files looked up relative to the project root.
const (
	EnvFile    = "file.env"
	IniFile    = "configs/config.ini"
	DevicesDir = "configs/devices"
	AppCapsDir = "configs/app/cap"
	UsersIni   = "configs/users_config.ini"
)

// Environment keys.
const (
	KeyHost          = "APPIUM_HOST"
	KeyPort          = "APPIUM_PORT"
	KeyBasePath      = "APPIUM_BASE_PATH"
	KeyBinary        = "APPIUM_BINARY"
	KeyStartTimeout  = "APPIUM_START_TIMEOUT"
	KeyStopTimeout   = "APPIUM_STOP_TIMEOUT"
	KeyPollInterval  = "APPIUM_POLL_INTERVAL"
	KeyLogDir        = "APPIUM_LOG_DIR"
	KeyHistoryDSN    = "HARNESS_HISTORY_DSN"
	KeyLogLevel      = "HARNESS_LOG_LEVEL"
	KeyLogFormat     = "HARNESS_LOG_FORMAT"
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 4723
	DefaultStartWait = 20 * time.Second
)

var (
	// ErrNotFound is returned when a required configuration file does not exist.
	ErrNotFound = errors.New("config file not found")
	// ErrMissingKey is returned when a required ini key is absent or empty.
	ErrMissingKey = errors.New("required config key missing")
	// ErrInvalidValue is returned when an environment value cannot be parsed.
	ErrInvalidValue = errors.New("invalid config value")
)

// Config merges, in order of precedence, the process environment, the
// project's file.env and built-in defaults. Non-endpoint settings come from
// configs/config.ini.
type Config struct {
	root string
	v    *viper.Viper
	ini  *ini.File // nil when configs/config.ini is absent
}

// Load reads file.env and configs/config.ini under root. Both files are optional
// here; accessors that need config.ini report ErrNotFound.
func Load(root string) (*Config, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	v := viper.New()
	v.SetDefault(strings.ToLower(KeyHost), DefaultHost)
	v.SetDefault(strings.ToLower(KeyPort), DefaultPort)
	v.SetDefault(strings.ToLower(KeyBinary), "appium")
	v.SetDefault(strings.ToLower(KeyStartTimeout), DefaultStartWait.String())
	v.SetDefault(strings.ToLower(KeyStopTimeout), supervisor.DefaultStopTimeout.String())
	v.SetDefault(strings.ToLower(KeyPollInterval), supervisor.DefaultPollInterval.String())
	v.SetDefault(strings.ToLower(KeyLogLevel), "info")
	v.SetDefault(strings.ToLower(KeyLogFormat), logger.FormatText)

	envPath := filepath.Join(abs, EnvFile)
	if _, err := os.Stat(envPath); err == nil {
		v.SetConfigFile(envPath)
		v.SetConfigType("dotenv")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", envPath, err)
		}
	}
	// real environment wins over file.env; empty values count as unset
	v.AutomaticEnv()

	c := &Config{root: abs, v: v}
	iniPath := filepath.Join(abs, IniFile)
	if _, err := os.Stat(iniPath); err == nil {
		f, err := ini.Load(iniPath)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", iniPath, err)
		}
		c.ini = f
	}
	return c, nil
}

// Root is the absolute project root.
func (c *Config) Root() string { return c.root }

// Path resolves a slash-separated path relative to the root. Absolute paths are returned as is.
func (c *Config) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.root, filepath.FromSlash(rel))
}

// Lookup returns the value of an environment key from the environment or
// file.env. Empty values are reported as unset.
func (c *Config) Lookup(key string) (string, bool) {
	s := c.v.GetString(strings.ToLower(key))
	if s == "" {
		return "", false
	}
	return s, true
}

// Get is Lookup with a fallback.
func (c *Config) Get(key, def string) string {
	if s, ok := c.Lookup(key); ok {
		return s
	}
	return def
}

// Endpoint is the server endpoint described by APPIUM_HOST, APPIUM_PORT and
// APPIUM_BASE_PATH. The base path is normalized.
func (c *Config) Endpoint() (supervisor.Endpoint, error) {
	portStr := strings.TrimSpace(c.Get(KeyPort, strconv.Itoa(DefaultPort)))
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return supervisor.Endpoint{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, KeyPort, portStr)
	}
	return supervisor.Endpoint{
		Host:     c.Get(KeyHost, DefaultHost),
		Port:     port,
		BasePath: supervisor.NormalizeBasePath(c.Get(KeyBasePath, "")),
	}, nil
}

// ServerURL is http://host:port<basePath>.
func (c *Config) ServerURL() (string, error) {
	ep, err := c.Endpoint()
	if err != nil {
		return "", err
	}
	return ep.URL(), nil
}

// StartTimeout is how long StartIfNeeded may wait for readiness.
func (c *Config) StartTimeout() (time.Duration, error) {
	return c.duration(KeyStartTimeout, DefaultStartWait)
}

// Supervisor builds the supervisor configuration. APPIUM_BINARY is split on
// whitespace so launchers such as "npx appium" work.
func (c *Config) Supervisor() (supervisor.Config, error) {
	fields := strings.Fields(c.Get(KeyBinary, "appium"))
	if len(fields) == 0 {
		fields = []string{"appium"}
	}
	stop, err := c.duration(KeyStopTimeout, supervisor.DefaultStopTimeout)
	if err != nil {
		return supervisor.Config{}, err
	}
	poll, err := c.duration(KeyPollInterval, supervisor.DefaultPollInterval)
	if err != nil {
		return supervisor.Config{}, err
	}
	sc := supervisor.Config{
		Binary:       fields[0],
		LeadingArgs:  fields[1:],
		WorkDir:      c.root,
		StopTimeout:  stop,
		PollInterval: poll,
		Log:          c.Logging(),
	}
	if dir, ok := c.Lookup(KeyLogDir); ok {
		sc.Log.File.Dir = c.Path(dir)
	}
	return sc, nil
}

// Logging is the harness' own log configuration.
func (c *Config) Logging() logger.Config {
	return logger.Config{
		Level:  c.Get(KeyLogLevel, "info"),
		Format: c.Get(KeyLogFormat, logger.FormatText),
	}
}

// HistoryDSN is the optional history sink DSN; empty disables history.
func (c *Config) HistoryDSN() string {
	return strings.TrimSpace(c.Get(KeyHistoryDSN, ""))
}

// DeviceProfile is [device] profile from config.ini.
func (c *Config) DeviceProfile() (string, error) { return c.iniValue("device", "profile") }

// AppCapsName is [app] app_capabilities from config.ini.
func (c *Config) AppCapsName() (string, error) { return c.iniValue("app", "app_capabilities") }

func (c *Config) iniValue(section, key string) (string, error) {
	if c.ini == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, c.Path(IniFile))
	}
	v := strings.TrimSpace(c.ini.Section(section).Key(key).String())
	if v == "" {
		return "", fmt.Errorf("%w: [%s] %s in %s", ErrMissingKey, section, key, c.Path(IniFile))
	}
	return v, nil
}

// duration accepts Go durations ("750ms") and bare numbers of seconds ("20").
func (c *Config) duration(key string, def time.Duration) (time.Duration, error) {
	s, ok := c.Lookup(key)
	if !ok {
		return def, nil
	}
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, s)
}
