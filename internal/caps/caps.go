// Package caps assembles the session capabilities sent to the automation server
// from device and app JSON profiles plus environment overrides.
package caps

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/harness/internal/config"
)

// Capability keys that may be overridden from the environment.
const (
	PlatformName    = "platformName"
	PlatformVersion = "platformVersion"
	DeviceName      = "deviceName"
	UDID            = "udid"
	App             = "app"
)

// Environment keys read by the loader.
const (
	EnvPlatformName    = "PLATFORM_NAME"
	EnvPlatformVersion = "PLATFORM_VERSION"
	EnvDeviceName      = "DEVICE_NAME"
	EnvUDID            = "UDID"
	EnvAppPath         = "APP_PATH"
)

// ErrDeviceNameRequired is returned when neither the profile nor the environment names a device.
var ErrDeviceNameRequired = errors.New("deviceName is required but not set (JSON/env)")

// Caps is a capability set as decoded from JSON.
type Caps map[string]any

// Source is what the loader needs from the configuration provider.
type Source interface {
	Lookup(key string) (string, bool)
	Path(rel string) string
	DeviceProfile() (string, error)
	AppCapsName() (string, error)
}

// Loader reads profiles from DevicesDir/<profile>.json and AppDir/<name>.json.
type Loader struct {
	Src        Source
	DevicesDir string
	AppDir     string
	Log        *slog.Logger
}

// NewLoader reads profiles from the standard project layout under src.
func NewLoader(src Source, log *slog.Logger) *Loader {
	return &Loader{Src: src, DevicesDir: config.DevicesDir, AppDir: config.AppCapsDir, Log: log}
}

func (l *Loader) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}

// Device loads the device profile and applies PLATFORM_NAME, PLATFORM_VERSION,
// DEVICE_NAME and UDID overrides. deviceName must end up non-empty.
func (l *Loader) Device() (Caps, error) {
	profile, err := l.Src.DeviceProfile()
	if err != nil {
		return nil, err
	}
	c, err := readJSON(filepath.Join(l.Src.Path(l.DevicesDir), profile+".json"))
	if err != nil {
		return nil, err
	}
	overrides := []struct{ env, key string }{
		{EnvPlatformName, PlatformName},
		{EnvPlatformVersion, PlatformVersion},
		{EnvDeviceName, DeviceName},
		{EnvUDID, UDID},
	}
	for _, o := range overrides {
		if v, ok := l.Src.Lookup(o.env); ok {
			c[o.key] = v
		} else if s, ok := c[o.key].(string); ok {
			c[o.key] = strings.TrimSpace(s)
		}
	}
	if v, ok := c[DeviceName]; !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
		return nil, fmt.Errorf("device profile %s: %w", profile, ErrDeviceNameRequired)
	}
	return c, nil
}

// App loads the app profile. APP_PATH, when set, becomes the "app" capability;
// relative paths are resolved against the project root.
func (l *Loader) App() (Caps, error) {
	name, err := l.Src.AppCapsName()
	if err != nil {
		return nil, err
	}
	c, err := readJSON(filepath.Join(l.Src.Path(l.AppDir), name+".json"))
	if err != nil {
		return nil, err
	}
	if p, ok := l.Src.Lookup(EnvAppPath); ok {
		c[App] = l.Src.Path(p)
	} else {
		l.logger().Error("APP_PATH is not set in environment variables")
	}
	return c, nil
}

// Merged returns device caps overlaid with app caps; app values win.
func (l *Loader) Merged() (Caps, error) {
	dev, err := l.Device()
	if err != nil {
		return nil, err
	}
	app, err := l.App()
	if err != nil {
		return nil, err
	}
	maps.Copy(dev, app)
	return dev, nil
}

func readJSON(path string) (Caps, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read caps %s: %w", path, err)
	}
	c := Caps{}
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode caps %s: %w", path, err)
	}
	return c, nil
}
